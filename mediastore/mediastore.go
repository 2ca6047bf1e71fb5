// Package mediastore exposes the scanned media index as live collections,
// gated by filesystem permissions, and owns physical deletion of files.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog/log"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/permission"
	"go.senan.xyz/chorus/stream"
)

var ErrNoConsentRequest = errors.New("no such consent request")

type PermissionSource interface {
	Permissions() stream.Stream[permission.Permissions]
	Refresh() permission.Permissions
}

type Options struct {
	// Grace keeps the backing collections warm for this long after the last
	// subscriber goes away.
	Grace time.Duration
	// RequireDeleteConsent makes DeleteTracks hand back a consent request
	// instead of deleting immediately.
	RequireDeleteConsent bool
}

type Store struct {
	db      *db.DB
	perms   PermissionSource
	options Options

	localRev int64
	local    *stream.Var[int64]

	mu      sync.Mutex
	pending map[string]ConsentRequest

	tracks  *stream.Shared[[]db.Track]
	albums  *stream.Shared[[]db.Album]
	artists *stream.Shared[[]db.Artist]
}

func New(dbc *db.DB, scanEvents stream.Stream[int64], perms PermissionSource, options Options) *Store {
	s := &Store{
		db:      dbc,
		perms:   perms,
		options: options,
		local:   stream.NewVar[int64](0),
		pending: map[string]ConsentRequest{},
	}

	s.tracks = queryShared(scanEvents, s.local, perms, options.Grace, s.queryTracks)
	s.albums = queryShared(scanEvents, s.local, perms, options.Grace, s.queryAlbums)
	s.artists = queryShared(scanEvents, s.local, perms, options.Grace, s.queryArtists)
	return s
}

// queryShared re-runs query whenever a scan finishes, a local delete bumps the
// revision, or permissions flip. While read access is missing it emits an
// empty collection instead.
func queryShared[T any](scan stream.Stream[int64], local stream.Stream[int64], perms PermissionSource, grace time.Duration, query func() ([]T, error)) *stream.Shared[[]T] {
	return stream.NewShared(func(ctx context.Context, emit func([]T)) error {
		combined := stream.Combine3(scan, local, perms.Permissions(), func(_ int64, _ int64, p permission.Permissions) ([]T, error) {
			if !p.CanReadAudioFiles {
				return []T{}, nil
			}
			return query()
		})
		return stream.Forward(ctx, combined, emit)
	}, grace)
}

func (s *Store) Tracks() stream.Stream[[]db.Track] {
	return s.tracks
}

func (s *Store) Albums() stream.Stream[[]db.Album] {
	return s.albums
}

func (s *Store) Artists() stream.Stream[[]db.Artist] {
	return s.artists
}

func (s *Store) queryTracks() ([]db.Track, error) {
	tracks := []db.Track{}
	err := s.db.
		Order("artist collate nocase, album collate nocase, disc_number, track_number, title collate nocase").
		Find(&tracks).
		Error
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	return tracks, nil
}

func (s *Store) queryAlbums() ([]db.Album, error) {
	albums := []db.Album{}
	err := s.db.
		Order("artist collate nocase, year, title collate nocase").
		Find(&albums).
		Error
	if err != nil {
		return nil, fmt.Errorf("query albums: %w", err)
	}
	return albums, nil
}

func (s *Store) queryArtists() ([]db.Artist, error) {
	artists := []db.Artist{}
	err := s.db.
		Order("name collate nocase").
		Find(&artists).
		Error
	if err != nil {
		return nil, fmt.Errorf("query artists: %w", err)
	}
	return artists, nil
}

// DeleteTracks removes the given tracks from disk and from the index. The
// result says what actually happened: tracks were deleted, write permission
// is missing, or the caller has to confirm a pending consent request first.
func (s *Store) DeleteTracks(ctx context.Context, trackIDs []int) (DeleteResult, error) {
	if perms := s.perms.Refresh(); !perms.CanWriteAudioFiles {
		return RequiresPermission{Permission: PermissionWriteAudioFiles}, nil
	}
	if s.options.RequireDeleteConsent {
		request := ConsentRequest{ID: uuid.NewString(), TrackIDs: trackIDs}
		s.mu.Lock()
		s.pending[request.ID] = request
		s.mu.Unlock()
		return RequiresUserConsent{Request: request}, nil
	}
	return s.performDelete(ctx, trackIDs)
}

// CompleteDelete resolves a consent request previously handed out by
// DeleteTracks. The handle is single use.
func (s *Store) CompleteDelete(ctx context.Context, handle string) (DeleteResult, error) {
	s.mu.Lock()
	request, ok := s.pending[handle]
	delete(s.pending, handle)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("handle %q: %w", handle, ErrNoConsentRequest)
	}
	if perms := s.perms.Refresh(); !perms.CanWriteAudioFiles {
		return RequiresPermission{Permission: PermissionWriteAudioFiles}, nil
	}
	return s.performDelete(ctx, request.TrackIDs)
}

func (s *Store) performDelete(ctx context.Context, trackIDs []int) (DeleteResult, error) {
	// The streams must reflect whatever was removed, even when a later
	// track fails.
	defer func() {
		s.local.Set(atomic.AddInt64(&s.localRev, 1))
	}()

	var deleted int
	for _, trackID := range trackIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var track db.Track
		err := s.db.Where("id = ?", trackID).First(&track).Error
		if gorm.IsRecordNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find track %d: %w", trackID, err)
		}
		// a file that can't be removed keeps its row, so the index stays
		// in step with what is actually on disk
		if err := os.Remove(track.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", track.Path).Msg("removing file")
			continue
		}
		if err := s.db.Where("id = ?", trackID).Delete(&db.Track{}).Error; err != nil {
			return nil, fmt.Errorf("delete track %d: %w", trackID, err)
		}
		log.Info().Int("track", trackID).Str("path", track.Path).Msg("deleted track")
		deleted++
	}
	return Deleted{Count: deleted}, nil
}
