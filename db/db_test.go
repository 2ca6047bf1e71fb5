package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.senan.xyz/chorus/stream"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	testDB, err := NewMock()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })
	require.NoError(t, testDB.Migrate(MigrationContext{}))
	return testDB
}

func TestExclusionIdempotence(t *testing.T) {
	t.Parallel()

	store := NewExclusionStore(newTestDB(t), 0)

	require.NoError(t, store.Exclude(TrackExclusion{TrackID: 1, ExcludeDate: 100}))
	// re-excluding keeps the original date and adds nothing
	require.NoError(t, store.Exclude(TrackExclusion{TrackID: 1, ExcludeDate: 999}))

	exclusions, err := store.all()
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
	require.Equal(t, int64(100), exclusions[0].ExcludeDate)

	// allowing twice is also fine
	require.NoError(t, store.Allow(1))
	require.NoError(t, store.Allow(1))

	exclusions, err = store.all()
	require.NoError(t, err)
	require.Empty(t, exclusions)
}

func TestExclusionConcurrentExcludes(t *testing.T) {
	t.Parallel()

	store := NewExclusionStore(newTestDB(t), 0)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Exclude(TrackExclusion{TrackID: 1, ExcludeDate: int64(100 + i)})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	exclusions, err := store.all()
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
}

func TestExclusionStream(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewExclusionStore(newTestDB(t), time.Minute)
	ch := store.Exclusions().Subscribe(ctx)

	ev := <-ch
	require.NoError(t, ev.Err)
	require.Empty(t, ev.Data)

	require.NoError(t, store.Exclude(TrackExclusion{TrackID: 3, ExcludeDate: 50}))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			require.NoError(t, ev.Err)
			if len(ev.Data) == 1 && ev.Data[0].TrackID == 3 {
				return
			}
		case <-deadline:
			t.Fatal("never observed the exclusion")
		}
	}
}

func TestUsageAggregation(t *testing.T) {
	t.Parallel()

	store := NewUsageStore(newTestDB(t))

	record := func(id string, trackID int, at int64) {
		t.Helper()
		require.NoError(t, store.RecordEvent(UsageEvent{ID: id, TrackID: trackID, EventTime: at}))
	}

	record("a", 1, 10)
	record("b", 1, 20)
	record("c", 1, 30)
	record("d", 2, 15)
	record("e", 2, 40)
	record("f", 3, 5)

	usages, err := store.TracksUsage(0)
	require.NoError(t, err)
	require.Equal(t, []TrackUsage{
		{TrackID: 1, Score: 3, LastEventTime: 30},
		{TrackID: 2, Score: 2, LastEventTime: 40},
		{TrackID: 3, Score: 1, LastEventTime: 5},
	}, usages)

	// the cutoff is inclusive and drops older events from the score
	usages, err = store.TracksUsage(20)
	require.NoError(t, err)
	require.Equal(t, []TrackUsage{
		{TrackID: 1, Score: 2, LastEventTime: 30},
		{TrackID: 2, Score: 1, LastEventTime: 40},
	}, usages)
}

func TestUsageChanges(t *testing.T) {
	t.Parallel()

	store := NewUsageStore(newTestDB(t))

	before, err := stream.First[int64](context.Background(), store.Changes())
	require.NoError(t, err)

	require.NoError(t, store.RecordEvent(UsageEvent{ID: "x", TrackID: 1, EventTime: 1}))

	after, err := stream.First[int64](context.Background(), store.Changes())
	require.NoError(t, err)
	require.Greater(t, after, before)
}

func TestPlaylistStore(t *testing.T) {
	t.Parallel()

	store := NewPlaylistStore(newTestDB(t))

	playlist, err := store.Create("road trip", "/icons/road trip.png")
	require.NoError(t, err)
	require.NotZero(t, playlist.ID)

	require.NoError(t, store.AddItems(playlist.ID, 5, 3, 9))
	require.NoError(t, store.AddItems(playlist.ID, 7))

	items, err := store.Items(playlist.ID)
	require.NoError(t, err)
	trackIDs := make([]int, 0, len(items))
	for _, item := range items {
		trackIDs = append(trackIDs, item.TrackID)
	}
	require.Equal(t, []int{5, 3, 9, 7}, trackIDs)

	require.NoError(t, store.RemoveItem(playlist.ID, 3))
	items, err = store.Items(playlist.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NoError(t, store.Delete(playlist.ID))
	_, err = store.Items(playlist.ID)
	require.ErrorIs(t, err, ErrNoPlaylist)

	_, err = store.Get(playlist.ID)
	require.ErrorIs(t, err, ErrNoPlaylist)
}
