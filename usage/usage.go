// Package usage records completed plays and turns them into rankings: the
// most played tracks, the recently popular ones, and the tracks that are the
// best candidates for freeing up disk space.
package usage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"go.senan.xyz/chorus/clock"
	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/stream"
)

type TrackSource interface {
	Tracks() stream.Stream[[]db.Track]
}

type EventSource interface {
	RecordEvent(ev db.UsageEvent) error
	TracksUsage(since int64) ([]db.TrackUsage, error)
	Changes() stream.Stream[int64]
}

type Manager struct {
	tracks TrackSource
	events EventSource
	clk    clock.Clock
}

func NewManager(tracks TrackSource, events EventSource, clk clock.Clock) *Manager {
	return &Manager{tracks: tracks, events: events, clk: clk}
}

// ReportCompletion records that a track was played to the end.
func (m *Manager) ReportCompletion(trackID int) error {
	err := m.events.RecordEvent(db.UsageEvent{
		ID:        uuid.NewString(),
		TrackID:   trackID,
		EventTime: m.clk.NowEpoch(),
	})
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// MostRatedTracks emits the listenable tracks ordered by all time play
// count, best first. Tracks that were never played are left out, and the
// list is capped at 25.
func (m *Manager) MostRatedTracks() stream.Stream[[]db.Track] {
	return m.ranked(func(active []db.Track) ([]db.Track, error) {
		usages, err := m.events.TracksUsage(0)
		if err != nil {
			return nil, err
		}
		return pickRanked(active, usages, resultLimit, func(db.TrackUsage) bool { return true }), nil
	})
}

// PopularTracksSince emits the tracks that stand out within the period:
// only tracks whose play count is strictly above a quarter of the best
// count make the cut. Unlike the other rankings the result is not capped.
func (m *Manager) PopularTracksSince(period time.Duration) stream.Stream[[]db.Track] {
	return m.ranked(func(active []db.Track) ([]db.Track, error) {
		since := m.clk.NowEpoch() - int64(period/time.Second)
		usages, err := m.events.TracksUsage(since)
		if err != nil {
			return nil, err
		}
		if len(usages) == 0 {
			return []db.Track{}, nil
		}
		threshold := usages[0].Score / 4
		return pickRanked(active, usages, len(usages), func(u db.TrackUsage) bool { return u.Score > threshold }), nil
	})
}

func (m *Manager) ranked(rank func(active []db.Track) ([]db.Track, error)) stream.Stream[[]db.Track] {
	return stream.Combine2(m.tracks.Tracks(), m.events.Changes(), func(active []db.Track, _ int64) ([]db.Track, error) {
		return rank(active)
	})
}

// pickRanked walks the usage rows, already ordered best first, keeping up to
// limit ones that pass keep and still exist in the active set.
func pickRanked(active []db.Track, usages []db.TrackUsage, limit int, keep func(db.TrackUsage) bool) []db.Track {
	byID := make(map[int]db.Track, len(active))
	for _, track := range active {
		byID[track.ID] = track
	}
	out := make([]db.Track, 0, limit)
	for _, usage := range usages {
		if len(out) == limit {
			break
		}
		if !keep(usage) {
			continue
		}
		if track, ok := byID[usage.TrackID]; ok {
			out = append(out, track)
		}
	}
	return out
}

// DisposableTrack is a deletion candidate as shown to the user.
type DisposableTrack struct {
	TrackID        int
	Title          string
	FileSize       int
	LastPlayedTime *int64
}

// DisposableTracks emits the 25 tracks most worth deleting, most disposable
// first. Ties rank the bigger file first.
func (m *Manager) DisposableTracks() stream.Stream[[]DisposableTrack] {
	return stream.Combine2(m.tracks.Tracks(), m.events.Changes(), func(active []db.Track, _ int64) ([]DisposableTrack, error) {
		usages, err := m.events.TracksUsage(0)
		if err != nil {
			return nil, err
		}
		byID := make(map[int]db.TrackUsage, len(usages))
		for _, usage := range usages {
			byID[usage.TrackID] = usage
		}

		now := m.clk.NowEpoch()
		type candidate struct {
			track DisposableTrack
			score int
		}
		candidates := make([]candidate, 0, len(active))
		for _, track := range active {
			var trackUsage *db.TrackUsage
			var lastPlayed *int64
			if usage, ok := byID[track.ID]; ok {
				usage := usage
				trackUsage = &usage
				lastPlayed = &usage.LastEventTime
			}
			candidates = append(candidates, candidate{
				track: DisposableTrack{
					TrackID:        track.ID,
					Title:          track.Title,
					FileSize:       track.Size,
					LastPlayedTime: lastPlayed,
				},
				score: disposability(&track, trackUsage, now),
			})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			if candidates[i].track.FileSize != candidates[j].track.FileSize {
				return candidates[i].track.FileSize > candidates[j].track.FileSize
			}
			return candidates[i].track.TrackID < candidates[j].track.TrackID
		})
		if len(candidates) > resultLimit {
			candidates = candidates[:resultLimit]
		}
		out := make([]DisposableTrack, 0, len(candidates))
		for _, c := range candidates {
			out = append(out, c.track)
		}
		return out, nil
	})
}
