// Package library layers user intent over the raw media index: exclusions
// hide tracks without touching the files, playlists reference tracks by id,
// and the album and artist views only ever show what is actually listenable.
package library

import (
	"context"
	"errors"
	"time"

	"go.senan.xyz/chorus/clock"
	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/mediastore"
	"go.senan.xyz/chorus/stream"
)

var ErrNoSuchItem = errors.New("no such item")

type TrackSource interface {
	Tracks() stream.Stream[[]db.Track]
	DeleteTracks(ctx context.Context, trackIDs []int) (mediastore.DeleteResult, error)
	CompleteDelete(ctx context.Context, handle string) (mediastore.DeleteResult, error)
}

type ExclusionSource interface {
	Exclusions() stream.Stream[[]db.TrackExclusion]
	Exclude(ex db.TrackExclusion) error
	Allow(trackID int) error
}

type TrackRepository struct {
	storage    TrackSource
	exclusions ExclusionSource
	clk        clock.Clock
	merged     *stream.Shared[[]db.Track]
}

func NewTrackRepository(storage TrackSource, exclusions ExclusionSource, clk clock.Clock, grace time.Duration) *TrackRepository {
	r := &TrackRepository{
		storage:    storage,
		exclusions: exclusions,
		clk:        clk,
	}
	r.merged = stream.NewShared(func(ctx context.Context, emit func([]db.Track)) error {
		combined := stream.Combine2(storage.Tracks(), exclusions.Exclusions(), stampExclusions)
		return stream.Forward(ctx, combined, emit)
	}, grace)
	return r
}

// stampExclusions copies the exclusion time onto each track so downstream
// consumers can tell the two populations apart from a single stream.
func stampExclusions(tracks []db.Track, exclusions []db.TrackExclusion) ([]db.Track, error) {
	excludedAt := make(map[int]int64, len(exclusions))
	for _, ex := range exclusions {
		excludedAt[ex.TrackID] = ex.ExcludeDate
	}
	merged := make([]db.Track, len(tracks))
	for i, track := range tracks {
		if at, ok := excludedAt[track.ID]; ok {
			at := at
			track.ExclusionTime = &at
		} else {
			track.ExclusionTime = nil
		}
		merged[i] = track
	}
	return merged, nil
}

// Tracks emits the listenable tracks, storage order preserved.
func (r *TrackRepository) Tracks() stream.Stream[[]db.Track] {
	return stream.Map[[]db.Track](r.merged, func(tracks []db.Track) []db.Track {
		return filterExcluded(tracks, false)
	})
}

// ExcludedTracks emits the tracks hidden from playback.
func (r *TrackRepository) ExcludedTracks() stream.Stream[[]db.Track] {
	return stream.Map[[]db.Track](r.merged, func(tracks []db.Track) []db.Track {
		return filterExcluded(tracks, true)
	})
}

func filterExcluded(tracks []db.Track, excluded bool) []db.Track {
	out := make([]db.Track, 0, len(tracks))
	for _, track := range tracks {
		if track.Excluded() == excluded {
			out = append(out, track)
		}
	}
	return out
}

// ExcludeTrack hides a track from playback. Excluding an already excluded
// track keeps the original exclusion time.
func (r *TrackRepository) ExcludeTrack(trackID int) error {
	return r.exclusions.Exclude(db.TrackExclusion{
		TrackID:     trackID,
		ExcludeDate: r.clk.NowEpoch(),
	})
}

// AllowTrack brings an excluded track back. Allowing a track that was never
// excluded is a no-op.
func (r *TrackRepository) AllowTrack(trackID int) error {
	return r.exclusions.Allow(trackID)
}

func (r *TrackRepository) DeleteTracks(ctx context.Context, trackIDs []int) (mediastore.DeleteResult, error) {
	return r.storage.DeleteTracks(ctx, trackIDs)
}

func (r *TrackRepository) CompleteDelete(ctx context.Context, handle string) (mediastore.DeleteResult, error) {
	return r.storage.CompleteDelete(ctx, handle)
}
