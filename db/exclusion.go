package db

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.senan.xyz/chorus/stream"
)

// ExclusionStore owns the track_exclusions table and re-emits the full
// exclusion list on every change.
type ExclusionStore struct {
	db     *DB
	rev    int64
	revVar *stream.Var[int64]
	shared *stream.Shared[[]TrackExclusion]
}

func NewExclusionStore(dbc *DB, grace time.Duration) *ExclusionStore {
	s := &ExclusionStore{
		db:     dbc,
		revVar: stream.NewVar[int64](0),
	}
	s.shared = stream.NewShared(s.produce, grace)
	return s
}

func (s *ExclusionStore) produce(ctx context.Context, emit func([]TrackExclusion)) error {
	return stream.Forward(ctx, stream.MapErr[int64, []TrackExclusion](s.revVar, func(int64) ([]TrackExclusion, error) {
		return s.all()
	}), emit)
}

func (s *ExclusionStore) Exclusions() stream.Stream[[]TrackExclusion] {
	return s.shared
}

func (s *ExclusionStore) all() ([]TrackExclusion, error) {
	var exclusions []TrackExclusion
	if err := s.db.Order("track_id").Find(&exclusions).Error; err != nil {
		return nil, fmt.Errorf("list exclusions: %w", err)
	}
	return exclusions, nil
}

// Exclude records the exclusion if the track isn't excluded already. The
// original exclude date survives repeat calls, concurrent ones included.
func (s *ExclusionStore) Exclude(ex TrackExclusion) error {
	res := s.db.Exec(`
		insert or ignore into track_exclusions (track_id, exclude_date)
		values (?, ?)`,
		ex.TrackID, ex.ExcludeDate)
	if res.Error != nil {
		return fmt.Errorf("create exclusion: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.bump()
	}
	return nil
}

// Allow removes the exclusion. Unexcluded ids are a no-op.
func (s *ExclusionStore) Allow(trackID int) error {
	res := s.db.Where("track_id = ?", trackID).Delete(TrackExclusion{})
	if res.Error != nil {
		return fmt.Errorf("delete exclusion: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.bump()
	}
	return nil
}

func (s *ExclusionStore) bump() {
	s.revVar.Set(atomic.AddInt64(&s.rev, 1))
}
