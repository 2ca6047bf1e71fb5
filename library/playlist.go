package library

import (
	"errors"
	"strings"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/stream"
)

var ErrBlankPlaylistName = errors.New("playlist name is blank")

type PlaylistSource interface {
	Playlists() ([]db.Playlist, error)
	Get(id int) (*db.Playlist, error)
	Create(name, iconPath string) (*db.Playlist, error)
	Delete(id int) error
	Items(playlistID int) ([]db.PlaylistItem, error)
	AddItems(playlistID int, trackIDs ...int) error
	RemoveItem(playlistID, trackID int) error
	Changes() stream.Stream[int64]
}

// IconWriter renders an icon for a playlist name and returns its path.
type IconWriter interface {
	Write(name string) (string, error)
}

type PlaylistRepository struct {
	store  PlaylistSource
	tracks *TrackRepository
	icons  IconWriter
}

func NewPlaylistRepository(store PlaylistSource, tracks *TrackRepository, icons IconWriter) *PlaylistRepository {
	return &PlaylistRepository{store: store, tracks: tracks, icons: icons}
}

// Playlists emits all playlists, re-reading after every mutation.
func (r *PlaylistRepository) Playlists() stream.Stream[[]db.Playlist] {
	return stream.MapErr(r.store.Changes(), func(int64) ([]db.Playlist, error) {
		return r.store.Playlists()
	})
}

// PlaylistTracks emits the playlist's tracks in playlist order. Entries whose
// track is excluded or deleted are silently dropped, and come back on their
// own if the track does.
func (r *PlaylistRepository) PlaylistTracks(playlistID int) stream.Stream[[]db.Track] {
	items := stream.MapErr(r.store.Changes(), func(int64) ([]db.PlaylistItem, error) {
		return r.store.Items(playlistID)
	})
	return stream.Combine2(items, r.tracks.Tracks(), func(items []db.PlaylistItem, active []db.Track) ([]db.Track, error) {
		byID := make(map[int]db.Track, len(active))
		for _, track := range active {
			byID[track.ID] = track
		}
		out := make([]db.Track, 0, len(items))
		for _, item := range items {
			if track, ok := byID[item.TrackID]; ok {
				out = append(out, track)
			}
		}
		return out, nil
	})
}

// CreateUserPlaylist makes a new playlist with a generated icon. Names are
// trimmed and must not be blank.
func (r *PlaylistRepository) CreateUserPlaylist(name string) (*db.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrBlankPlaylistName
	}
	iconPath, err := r.icons.Write(name)
	if err != nil {
		return nil, err
	}
	return r.store.Create(name, iconPath)
}

func (r *PlaylistRepository) DeletePlaylist(playlistID int) error {
	return r.store.Delete(playlistID)
}

func (r *PlaylistRepository) AddToPlaylist(playlistID int, trackIDs ...int) error {
	return r.store.AddItems(playlistID, trackIDs...)
}

func (r *PlaylistRepository) RemoveFromPlaylist(playlistID, trackID int) error {
	return r.store.RemoveItem(playlistID, trackID)
}
