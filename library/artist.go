package library

import (
	"context"
	"fmt"
	"time"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/stream"
)

type ArtistSource interface {
	Artists() stream.Stream[[]db.Artist]
}

// ArtistRepository mirrors AlbumRepository: counts follow the listenable
// tracks, and artists with nothing left to play are dropped.
type ArtistRepository struct {
	tracks *TrackRepository
	shared *stream.Shared[[]db.Artist]
}

func NewArtistRepository(storage ArtistSource, tracks *TrackRepository, grace time.Duration) *ArtistRepository {
	r := &ArtistRepository{tracks: tracks}
	r.shared = stream.NewShared(func(ctx context.Context, emit func([]db.Artist)) error {
		combined := stream.Combine2(storage.Artists(), tracks.Tracks(), visibleArtists)
		return stream.Forward(ctx, combined, emit)
	}, grace)
	return r
}

func visibleArtists(artists []db.Artist, active []db.Track) ([]db.Artist, error) {
	trackCounts := make(map[int]int, len(artists))
	albumSets := make(map[int]map[int]struct{}, len(artists))
	for _, track := range active {
		if track.ArtistID == nil {
			continue
		}
		trackCounts[*track.ArtistID]++
		if track.AlbumID == nil {
			continue
		}
		albums := albumSets[*track.ArtistID]
		if albums == nil {
			albums = map[int]struct{}{}
			albumSets[*track.ArtistID] = albums
		}
		albums[*track.AlbumID] = struct{}{}
	}
	out := make([]db.Artist, 0, len(artists))
	for _, artist := range artists {
		n := trackCounts[artist.ID]
		if n == 0 {
			continue
		}
		artist.TrackCount = n
		artist.AlbumCount = len(albumSets[artist.ID])
		out = append(out, artist)
	}
	return out, nil
}

func (r *ArtistRepository) Artists() stream.Stream[[]db.Artist] {
	return r.shared
}

// ArtistTracks emits the listenable tracks of one artist, storage order
// preserved.
func (r *ArtistRepository) ArtistTracks(artistID int) stream.Stream[[]db.Track] {
	return stream.MapErr(r.tracks.Tracks(), func(tracks []db.Track) ([]db.Track, error) {
		var out []db.Track
		for _, track := range tracks {
			if track.ArtistID != nil && *track.ArtistID == artistID {
				out = append(out, track)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("artist %d: %w", artistID, ErrNoSuchItem)
		}
		return out, nil
	})
}
