package db

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jinzhu/gorm"

	"go.senan.xyz/chorus/stream"
)

var ErrNoPlaylist = errors.New("no such playlist")

// PlaylistStore owns the playlists and playlist_items tables. Membership is
// a plain ordered list of track ids - resolving them against the live
// library belongs to the library layer.
type PlaylistStore struct {
	db     *DB
	rev    int64
	revVar *stream.Var[int64]
}

func NewPlaylistStore(dbc *DB) *PlaylistStore {
	return &PlaylistStore{
		db:     dbc,
		revVar: stream.NewVar[int64](0),
	}
}

func (s *PlaylistStore) Playlists() ([]Playlist, error) {
	var playlists []Playlist
	if err := s.db.Order("name collate nocase").Find(&playlists).Error; err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	return playlists, nil
}

func (s *PlaylistStore) Get(id int) (*Playlist, error) {
	var playlist Playlist
	err := s.db.First(&playlist, id).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, ErrNoPlaylist
	}
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}
	return &playlist, nil
}

func (s *PlaylistStore) Create(name, iconPath string) (*Playlist, error) {
	playlist := Playlist{Name: name, IconPath: iconPath}
	if err := s.db.Create(&playlist).Error; err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}
	s.bump()
	return &playlist, nil
}

func (s *PlaylistStore) Delete(id int) error {
	err := s.db.WithTx(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(PlaylistItem{}).Error; err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := tx.Delete(Playlist{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete playlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bump()
	return nil
}

// Items returns the playlist's membership in play order.
func (s *PlaylistStore) Items(playlistID int) ([]PlaylistItem, error) {
	if _, err := s.Get(playlistID); err != nil {
		return nil, err
	}
	var items []PlaylistItem
	if err := s.db.Where("playlist_id = ?", playlistID).Order("position").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list playlist items: %w", err)
	}
	return items, nil
}

func (s *PlaylistStore) AddItems(playlistID int, trackIDs ...int) error {
	if _, err := s.Get(playlistID); err != nil {
		return err
	}
	err := s.db.WithTx(func(tx *gorm.DB) error {
		var maxPos struct{ Position int }
		tx.Model(PlaylistItem{}).
			Select("coalesce(max(position), 0) as position").
			Where("playlist_id = ?", playlistID).
			Scan(&maxPos)
		for i, trackID := range trackIDs {
			item := PlaylistItem{
				PlaylistID: &playlistID,
				TrackID:    trackID,
				Position:   maxPos.Position + i + 1,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("create item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bump()
	return nil
}

func (s *PlaylistStore) RemoveItem(playlistID, trackID int) error {
	res := s.db.
		Where("playlist_id = ? and track_id = ?", playlistID, trackID).
		Delete(PlaylistItem{})
	if res.Error != nil {
		return fmt.Errorf("delete item: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.bump()
	}
	return nil
}

func (s *PlaylistStore) Changes() stream.Stream[int64] {
	return s.revVar
}

func (s *PlaylistStore) bump() {
	s.revVar.Set(atomic.AddInt64(&s.rev, 1))
}
