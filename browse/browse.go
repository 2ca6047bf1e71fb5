package browse

import (
	"context"
	"errors"
	"fmt"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/library"
	"go.senan.xyz/chorus/stream"
)

var ErrNoChildren = errors.New("id has no children")

// Entry is one row in a browse listing. Playable entries reference a track,
// the rest can be descended into.
type Entry struct {
	ID       ID     `json:"id"`
	Title    string `json:"title"`
	Playable bool   `json:"playable"`
}

type Browser struct {
	albums    *library.AlbumRepository
	artists   *library.ArtistRepository
	playlists *library.PlaylistRepository
}

func NewBrowser(albums *library.AlbumRepository, artists *library.ArtistRepository, playlists *library.PlaylistRepository) *Browser {
	return &Browser{albums: albums, artists: artists, playlists: playlists}
}

// ChildrenOf lists what sits under id. A zero value selects the whole
// category, so "al-0" is all albums while "al-7" is the tracks of album 7.
func (b *Browser) ChildrenOf(ctx context.Context, id ID) ([]Entry, error) {
	switch {
	case id.Type == Root:
		return []Entry{
			{ID: ID{Type: Album}, Title: "Albums"},
			{ID: ID{Type: Artist}, Title: "Artists"},
			{ID: ID{Type: Playlist}, Title: "Playlists"},
		}, nil
	case id.Type == Album && id.Value == 0:
		albums, err := stream.First(ctx, b.albums.Albums())
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
		entries := make([]Entry, 0, len(albums))
		for _, album := range albums {
			entries = append(entries, Entry{ID: ID{Type: Album, Value: album.ID}, Title: album.Title})
		}
		return entries, nil
	case id.Type == Album:
		tracks, err := stream.First(ctx, b.albums.AlbumTracks(id.Value))
		if err != nil {
			return nil, fmt.Errorf("list album tracks: %w", err)
		}
		return trackEntries(tracks), nil
	case id.Type == Artist && id.Value == 0:
		artists, err := stream.First(ctx, b.artists.Artists())
		if err != nil {
			return nil, fmt.Errorf("list artists: %w", err)
		}
		entries := make([]Entry, 0, len(artists))
		for _, artist := range artists {
			entries = append(entries, Entry{ID: ID{Type: Artist, Value: artist.ID}, Title: artist.Name})
		}
		return entries, nil
	case id.Type == Artist:
		albums, err := stream.First(ctx, b.albums.ArtistAlbums(id.Value))
		if err != nil {
			return nil, fmt.Errorf("list artist albums: %w", err)
		}
		entries := make([]Entry, 0, len(albums))
		for _, album := range albums {
			entries = append(entries, Entry{ID: ID{Type: Album, Value: album.ID}, Title: album.Title})
		}
		return entries, nil
	case id.Type == Playlist && id.Value == 0:
		playlists, err := stream.First(ctx, b.playlists.Playlists())
		if err != nil {
			return nil, fmt.Errorf("list playlists: %w", err)
		}
		entries := make([]Entry, 0, len(playlists))
		for _, playlist := range playlists {
			entries = append(entries, Entry{ID: ID{Type: Playlist, Value: playlist.ID}, Title: playlist.Name})
		}
		return entries, nil
	case id.Type == Playlist:
		tracks, err := stream.First(ctx, b.playlists.PlaylistTracks(id.Value))
		if err != nil {
			return nil, fmt.Errorf("list playlist tracks: %w", err)
		}
		return trackEntries(tracks), nil
	case id.Type == Track:
		return nil, fmt.Errorf("%s: %w", id, ErrNoChildren)
	default:
		return nil, fmt.Errorf("%s: %w", id, ErrBadPrefix)
	}
}

func trackEntries(tracks []db.Track) []Entry {
	entries := make([]Entry, 0, len(tracks))
	for _, track := range tracks {
		entries = append(entries, Entry{ID: ID{Type: Track, Value: track.ID}, Title: track.Title, Playable: true})
	}
	return entries
}
