package library

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/stream"
)

type AlbumSource interface {
	Albums() stream.Stream[[]db.Album]
}

// AlbumRepository shows albums through the lens of the listenable tracks:
// counts shrink as tracks are excluded, and an album with nothing left to
// play disappears entirely.
type AlbumRepository struct {
	tracks *TrackRepository
	shared *stream.Shared[[]db.Album]
}

func NewAlbumRepository(storage AlbumSource, tracks *TrackRepository, grace time.Duration) *AlbumRepository {
	r := &AlbumRepository{tracks: tracks}
	r.shared = stream.NewShared(func(ctx context.Context, emit func([]db.Album)) error {
		combined := stream.Combine2(storage.Albums(), tracks.Tracks(), visibleAlbums)
		return stream.Forward(ctx, combined, emit)
	}, grace)
	return r
}

func visibleAlbums(albums []db.Album, active []db.Track) ([]db.Album, error) {
	counts := make(map[int]int, len(albums))
	for _, track := range active {
		if track.AlbumID != nil {
			counts[*track.AlbumID]++
		}
	}
	out := make([]db.Album, 0, len(albums))
	for _, album := range albums {
		n := counts[album.ID]
		if n == 0 {
			continue
		}
		album.TrackCount = n
		out = append(out, album)
	}
	return out, nil
}

func (r *AlbumRepository) Albums() stream.Stream[[]db.Album] {
	return r.shared
}

// ArtistAlbums narrows the album stream to one artist, erroring out if the
// artist has nothing listenable.
func (r *AlbumRepository) ArtistAlbums(artistID int) stream.Stream[[]db.Album] {
	return stream.MapErr[[]db.Album](r.shared, func(albums []db.Album) ([]db.Album, error) {
		var out []db.Album
		for _, album := range albums {
			if album.ArtistID != nil && *album.ArtistID == artistID {
				out = append(out, album)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("artist %d: %w", artistID, ErrNoSuchItem)
		}
		return out, nil
	})
}

// AlbumTracks emits the listenable tracks of one album in playback order.
func (r *AlbumRepository) AlbumTracks(albumID int) stream.Stream[[]db.Track] {
	return stream.MapErr(r.tracks.Tracks(), func(tracks []db.Track) ([]db.Track, error) {
		var out []db.Track
		for _, track := range tracks {
			if track.AlbumID != nil && *track.AlbumID == albumID {
				out = append(out, track)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("album %d: %w", albumID, ErrNoSuchItem)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].DiscNumber != out[j].DiscNumber {
				return out[i].DiscNumber < out[j].DiscNumber
			}
			return out[i].TrackNumber < out[j].TrackNumber
		})
		return out, nil
	})
}
