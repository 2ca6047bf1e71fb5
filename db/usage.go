package db

import (
	"fmt"
	"sync/atomic"

	"go.senan.xyz/chorus/stream"
)

// UsageStore owns the usage_events table. Events are append-only - any
// retention policy is somebody else's housekeeping.
type UsageStore struct {
	db     *DB
	rev    int64
	revVar *stream.Var[int64]
}

func NewUsageStore(dbc *DB) *UsageStore {
	return &UsageStore{
		db:     dbc,
		revVar: stream.NewVar[int64](0),
	}
}

func (s *UsageStore) RecordEvent(ev UsageEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("usage event has no id")
	}
	if err := s.db.Create(&ev).Error; err != nil {
		return fmt.Errorf("create usage event: %w", err)
	}
	s.revVar.Set(atomic.AddInt64(&s.rev, 1))
	return nil
}

// TracksUsage aggregates events at or after since, best scores first. Ties
// break by most recent event, then by track id, so the ordering is stable
// between calls.
func (s *UsageStore) TracksUsage(since int64) ([]TrackUsage, error) {
	rows, err := s.db.
		Model(UsageEvent{}).
		Select("track_id, count(*) as score, max(event_time) as last_event_time").
		Where("event_time >= ?", since).
		Group("track_id").
		Order("score desc, last_event_time desc, track_id asc").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	defer rows.Close()

	var usages []TrackUsage
	for rows.Next() {
		var usage TrackUsage
		if err := rows.Scan(&usage.TrackID, &usage.Score, &usage.LastEventTime); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		usages = append(usages, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter usage rows: %w", err)
	}
	return usages, nil
}

// Changes emits a new revision after every write. Derived streams combine it
// with their other inputs to know when to re-query.
func (s *UsageStore) Changes() stream.Stream[int64] {
	return s.revVar
}
