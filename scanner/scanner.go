// Package scanner walks the music directories and keeps the track, album,
// and artist tables in sync with what is on disk.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/djherbis/times"
	"github.com/dustin/go-humanize"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog/log"

	"go.senan.xyz/chorus/clock"
	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/stream"
	"go.senan.xyz/chorus/tags"
)

var ErrAlreadyScanning = errors.New("already scanning")

var coverNames = []string{
	"cover.png", "cover.jpg", "cover.jpeg",
	"folder.png", "folder.jpg", "folder.jpeg",
	"album.png", "album.jpg", "album.jpeg",
	"front.png", "front.jpg", "front.jpeg",
}

type Scanner struct {
	db         *db.DB
	musicPaths []string
	tagReader  tags.Reader
	clk        clock.Clock

	scanning int32
	rev      int64
	events   *stream.Var[int64]
}

func New(dbc *db.DB, musicPaths []string, tagReader tags.Reader, clk clock.Clock) *Scanner {
	return &Scanner{
		db:         dbc,
		musicPaths: musicPaths,
		tagReader:  tagReader,
		clk:        clk,
		events:     stream.NewVar[int64](0),
	}
}

// Events emits a fresh revision after every completed scan.
func (s *Scanner) Events() stream.Stream[int64] {
	return s.events
}

func (s *Scanner) IsScanning() bool {
	return atomic.LoadInt32(&s.scanning) == 1
}

type Stats struct {
	SeenTracks    int
	NewTracks     int
	DeletedTracks int
	TotalSize     int64
	Duration      time.Duration
}

// ScanAndClean walks every music path, upserting rows for the audio files it
// finds and removing rows whose files are gone. Only one scan runs at a time.
func (s *Scanner) ScanAndClean(ctx context.Context) (*Stats, error) {
	if !atomic.CompareAndSwapInt32(&s.scanning, 0, 1) {
		return nil, ErrAlreadyScanning
	}
	defer atomic.StoreInt32(&s.scanning, 0)

	start := time.Now()
	var stats Stats
	seen := map[string]struct{}{}
	covers := map[string]string{}

	err := s.db.WithTx(func(tx *gorm.DB) error {
		for _, musicPath := range s.musicPaths {
			err := filepath.WalkDir(musicPath, func(absPath string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if d.IsDir() || !s.tagReader.CanRead(absPath) {
					return nil
				}
				seen[absPath] = struct{}{}
				if err := s.scanTrack(tx, absPath, d, covers, &stats); err != nil {
					return fmt.Errorf("scan track %q: %w", absPath, err)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("walk %q: %w", musicPath, err)
			}
		}
		if err := s.cleanTracks(tx, seen, &stats); err != nil {
			return fmt.Errorf("clean tracks: %w", err)
		}
		if err := refreshCounts(tx); err != nil {
			return fmt.Errorf("refresh counts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	s.events.Set(atomic.AddInt64(&s.rev, 1))

	log.Info().
		Int("seen", stats.SeenTracks).
		Int("new", stats.NewTracks).
		Int("deleted", stats.DeletedTracks).
		Str("size", humanize.IBytes(uint64(stats.TotalSize))).
		Dur("took", stats.Duration).
		Msg("finished scan")
	return &stats, nil
}

func (s *Scanner) scanTrack(tx *gorm.DB, absPath string, d fs.DirEntry, covers map[string]string, stats *Stats) error {
	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	stats.SeenTracks++
	stats.TotalSize += info.Size()

	var track db.Track
	err = tx.Where("path = ?", absPath).First(&track).Error
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("find track: %w", err)
	}
	if err == nil && !info.ModTime().After(track.UpdatedAt) {
		return nil
	}

	trackTags, err := s.tagReader.Read(absPath)
	if err != nil {
		log.Warn().Err(err).Str("path", absPath).Msg("skipping unreadable file")
		return nil
	}

	artist, err := upsertArtist(tx, trackTags.SomeArtist())
	if err != nil {
		return fmt.Errorf("upsert artist: %w", err)
	}
	album, err := upsertAlbum(tx, trackTags, artist.ID, coverFor(covers, filepath.Dir(absPath)))
	if err != nil {
		return fmt.Errorf("upsert album: %w", err)
	}

	isNew := track.ID == 0
	track.Path = absPath
	track.Title = trackTags.Title
	if track.Title == "" {
		track.Title = strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
	}
	track.Artist = artist.Name
	track.ArtistID = &artist.ID
	track.Album = album.Title
	track.AlbumID = &album.ID
	track.Duration = trackTags.LengthMs
	track.DiscNumber = trackTags.DiscNumber
	track.TrackNumber = trackTags.TrackNumber
	track.Year = trackTags.Year
	track.Size = int(info.Size())
	track.CoverPath = album.CoverPath
	if isNew {
		track.AddedDate = addedDate(info, s.clk)
	}
	if err := tx.Save(&track).Error; err != nil {
		return fmt.Errorf("save track: %w", err)
	}
	if isNew {
		stats.NewTracks++
	}
	return nil
}

func upsertArtist(tx *gorm.DB, name string) (*db.Artist, error) {
	var artist db.Artist
	err := tx.Where("name = ?", name).
		Attrs(db.Artist{Name: name}).
		FirstOrCreate(&artist).
		Error
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

func upsertAlbum(tx *gorm.DB, trackTags *tags.Info, artistID int, coverPath string) (*db.Album, error) {
	title := trackTags.SomeAlbum()
	var album db.Album
	err := tx.Where("title = ? AND artist_id = ?", title, artistID).
		First(&album).
		Error
	if err != nil && !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}
	album.Title = title
	album.ArtistID = &artistID
	album.Artist = trackTags.SomeArtist()
	if album.Year == 0 {
		album.Year = trackTags.Year
	}
	if coverPath != "" {
		album.CoverPath = coverPath
	}
	if err := tx.Save(&album).Error; err != nil {
		return nil, err
	}
	return &album, nil
}

// coverFor looks for well known cover art filenames next to the track,
// remembering the answer per directory.
func coverFor(covers map[string]string, dir string) string {
	if cover, ok := covers[dir]; ok {
		return cover
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		covers[dir] = ""
		return ""
	}
	names := map[string]struct{}{}
	for _, entry := range entries {
		names[strings.ToLower(entry.Name())] = struct{}{}
	}
	for _, candidate := range coverNames {
		if _, ok := names[candidate]; ok {
			cover := filepath.Join(dir, candidate)
			covers[dir] = cover
			return cover
		}
	}
	covers[dir] = ""
	return ""
}

func addedDate(info fs.FileInfo, clk clock.Clock) int64 {
	if spec := times.Get(info); spec.HasBirthTime() {
		return spec.BirthTime().Unix()
	}
	if mod := info.ModTime(); !mod.IsZero() {
		return mod.Unix()
	}
	return clk.NowEpoch()
}

func (s *Scanner) cleanTracks(tx *gorm.DB, seen map[string]struct{}, stats *Stats) error {
	var known []db.Track
	if err := tx.Select("id, path").Find(&known).Error; err != nil {
		return err
	}
	var missing []int
	for _, track := range known {
		if _, ok := seen[track.Path]; !ok {
			missing = append(missing, track.ID)
		}
	}
	sort.Ints(missing)
	if len(missing) > 0 {
		if err := tx.Where("id IN (?)", missing).Delete(&db.Track{}).Error; err != nil {
			return err
		}
	}
	stats.DeletedTracks = len(missing)

	if err := tx.Exec("DELETE FROM albums WHERE id NOT IN (SELECT DISTINCT album_id FROM tracks WHERE album_id IS NOT NULL)").Error; err != nil {
		return err
	}
	return tx.Exec("DELETE FROM artists WHERE id NOT IN (SELECT DISTINCT artist_id FROM tracks WHERE artist_id IS NOT NULL)").Error
}

func refreshCounts(tx *gorm.DB) error {
	if err := tx.Exec("UPDATE albums SET track_count=(SELECT count(*) FROM tracks WHERE tracks.album_id=albums.id)").Error; err != nil {
		return err
	}
	if err := tx.Exec("UPDATE artists SET track_count=(SELECT count(*) FROM tracks WHERE tracks.artist_id=artists.id), album_count=(SELECT count(*) FROM albums WHERE albums.artist_id=artists.id)").Error; err != nil {
		return err
	}
	return tx.Exec("UPDATE artists SET cover_path=coalesce((SELECT cover_path FROM albums WHERE albums.artist_id=artists.id AND cover_path!='' ORDER BY year DESC LIMIT 1), '')").Error
}
