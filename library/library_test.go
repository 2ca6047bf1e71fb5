package library_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.senan.xyz/chorus/clock"
	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/library"
	"go.senan.xyz/chorus/mediastore"
	"go.senan.xyz/chorus/stream"
)

const grace = 50 * time.Millisecond

type fakeStorage struct {
	tracks   *stream.Var[[]db.Track]
	albums   *stream.Var[[]db.Album]
	artists  *stream.Var[[]db.Artist]
	deleteFn func(trackIDs []int) (mediastore.DeleteResult, error)
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		tracks:  stream.NewVar([]db.Track{}),
		albums:  stream.NewVar([]db.Album{}),
		artists: stream.NewVar([]db.Artist{}),
	}
}

func (f *fakeStorage) Tracks() stream.Stream[[]db.Track]   { return f.tracks }
func (f *fakeStorage) Albums() stream.Stream[[]db.Album]   { return f.albums }
func (f *fakeStorage) Artists() stream.Stream[[]db.Artist] { return f.artists }

func (f *fakeStorage) DeleteTracks(_ context.Context, trackIDs []int) (mediastore.DeleteResult, error) {
	return f.deleteFn(trackIDs)
}

func (f *fakeStorage) CompleteDelete(context.Context, string) (mediastore.DeleteResult, error) {
	return mediastore.Deleted{}, nil
}

type stubIcons struct{ dir string }

func (s stubIcons) Write(name string) (string, error) {
	return filepath.Join(s.dir, name+".png"), nil
}

func newExclusions(t *testing.T) (*db.ExclusionStore, *db.DB) {
	t.Helper()
	dbc, err := db.NewMock()
	require.NoError(t, err)
	require.NoError(t, dbc.Migrate(db.MigrationContext{}))
	t.Cleanup(func() { dbc.Close() })
	return db.NewExclusionStore(dbc, grace), dbc
}

func ptr(i int) *int { return &i }

func trackIDs(tracks []db.Track) []int {
	ids := make([]int, 0, len(tracks))
	for _, track := range tracks {
		ids = append(ids, track.ID)
	}
	return ids
}

func await[T any](t *testing.T, ch <-chan stream.Event[T], pred func(T) bool) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "stream closed while waiting")
			require.NoError(t, ev.Err)
			if pred(ev.Data) {
				return ev.Data
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream")
		}
	}
}

func TestExcludeSplitsTheTrackStreams(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	storage.tracks.Set([]db.Track{
		{IDBase: db.IDBase{ID: 1}, Title: "one"},
		{IDBase: db.IDBase{ID: 2}, Title: "two"},
		{IDBase: db.IDBase{ID: 3}, Title: "three"},
	})
	exclusions, _ := newExclusions(t)
	clk := clock.NewFrozen(1700000000)
	repo := library.NewTrackRepository(storage, exclusions, clk, grace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	active := repo.Tracks().Subscribe(ctx)
	excluded := repo.ExcludedTracks().Subscribe(ctx)

	await(t, active, func(tracks []db.Track) bool { return len(tracks) == 3 })
	await(t, excluded, func(tracks []db.Track) bool { return len(tracks) == 0 })

	require.NoError(t, repo.ExcludeTrack(2))
	got := await(t, active, func(tracks []db.Track) bool { return len(tracks) == 2 })
	require.Equal(t, []int{1, 3}, trackIDs(got))

	gone := await(t, excluded, func(tracks []db.Track) bool { return len(tracks) == 1 })
	require.Equal(t, 2, gone[0].ID)
	require.NotNil(t, gone[0].ExclusionTime)
	require.EqualValues(t, 1700000000, *gone[0].ExclusionTime)

	// excluding again keeps the original timestamp
	clk.Advance(time.Hour)
	require.NoError(t, repo.ExcludeTrack(2))
	require.NoError(t, repo.AllowTrack(2))
	back := await(t, active, func(tracks []db.Track) bool { return len(tracks) == 3 })
	require.Equal(t, []int{1, 2, 3}, trackIDs(back))
}

func TestAlbumCountsFollowExclusions(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	storage.tracks.Set([]db.Track{
		{IDBase: db.IDBase{ID: 1}, AlbumID: ptr(10)},
		{IDBase: db.IDBase{ID: 2}, AlbumID: ptr(10)},
		{IDBase: db.IDBase{ID: 3}, AlbumID: ptr(20)},
	})
	storage.albums.Set([]db.Album{
		{IDBase: db.IDBase{ID: 10}, Title: "first", TrackCount: 2},
		{IDBase: db.IDBase{ID: 20}, Title: "second", TrackCount: 1},
	})
	exclusions, _ := newExclusions(t)
	tracks := library.NewTrackRepository(storage, exclusions, clock.NewFrozen(1), grace)
	albums := library.NewAlbumRepository(storage, tracks, grace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := albums.Albums().Subscribe(ctx)
	await(t, events, func(albums []db.Album) bool {
		return len(albums) == 2 && albums[0].TrackCount == 2
	})

	require.NoError(t, tracks.ExcludeTrack(1))
	await(t, events, func(albums []db.Album) bool {
		return len(albums) == 2 && albums[0].TrackCount == 1
	})

	require.NoError(t, tracks.ExcludeTrack(2))
	got := await(t, events, func(albums []db.Album) bool { return len(albums) == 1 })
	require.Equal(t, "second", got[0].Title)
	require.Equal(t, 1, got[0].TrackCount)
}

func TestArtistCountsFollowExclusions(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	storage.tracks.Set([]db.Track{
		{IDBase: db.IDBase{ID: 1}, ArtistID: ptr(5), AlbumID: ptr(10)},
		{IDBase: db.IDBase{ID: 2}, ArtistID: ptr(5), AlbumID: ptr(20)},
		{IDBase: db.IDBase{ID: 3}, ArtistID: ptr(6), AlbumID: ptr(30)},
	})
	storage.artists.Set([]db.Artist{
		{IDBase: db.IDBase{ID: 5}, Name: "a", TrackCount: 2, AlbumCount: 2},
		{IDBase: db.IDBase{ID: 6}, Name: "b", TrackCount: 1, AlbumCount: 1},
	})
	exclusions, _ := newExclusions(t)
	tracks := library.NewTrackRepository(storage, exclusions, clock.NewFrozen(1), grace)
	artists := library.NewArtistRepository(storage, tracks, grace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := artists.Artists().Subscribe(ctx)
	await(t, events, func(artists []db.Artist) bool { return len(artists) == 2 })

	require.NoError(t, tracks.ExcludeTrack(2))
	got := await(t, events, func(artists []db.Artist) bool {
		return len(artists) == 2 && artists[0].AlbumCount == 1
	})
	require.Equal(t, 1, got[0].TrackCount)

	require.NoError(t, tracks.ExcludeTrack(1))
	got = await(t, events, func(artists []db.Artist) bool { return len(artists) == 1 })
	require.Equal(t, "b", got[0].Name)
}

func TestAlbumTracksOrderAndMissing(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	storage.tracks.Set([]db.Track{
		{IDBase: db.IDBase{ID: 1}, AlbumID: ptr(10), DiscNumber: 2, TrackNumber: 1},
		{IDBase: db.IDBase{ID: 2}, AlbumID: ptr(10), DiscNumber: 1, TrackNumber: 2},
		{IDBase: db.IDBase{ID: 3}, AlbumID: ptr(10), DiscNumber: 1, TrackNumber: 1},
	})
	exclusions, _ := newExclusions(t)
	tracks := library.NewTrackRepository(storage, exclusions, clock.NewFrozen(1), grace)
	albums := library.NewAlbumRepository(storage, tracks, grace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := await(t, albums.AlbumTracks(10).Subscribe(ctx), func(tracks []db.Track) bool {
		return len(tracks) == 3
	})
	require.Equal(t, []int{3, 2, 1}, trackIDs(got))

	ev := <-albums.AlbumTracks(99).Subscribe(ctx)
	require.ErrorIs(t, ev.Err, library.ErrNoSuchItem)
}

func TestPlaylistTracksDropOrphans(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	storage.tracks.Set([]db.Track{
		{IDBase: db.IDBase{ID: 1}, Title: "one"},
		{IDBase: db.IDBase{ID: 3}, Title: "three"},
	})
	exclusions, dbc := newExclusions(t)
	tracks := library.NewTrackRepository(storage, exclusions, clock.NewFrozen(1), grace)
	store := db.NewPlaylistStore(dbc)
	repo := library.NewPlaylistRepository(store, tracks, stubIcons{dir: t.TempDir()})

	playlist, err := repo.CreateUserPlaylist("  road trip ")
	require.NoError(t, err)
	require.Equal(t, "road trip", playlist.Name)
	require.NotEmpty(t, playlist.IconPath)
	require.NoError(t, repo.AddToPlaylist(playlist.ID, 1, 2, 3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := repo.PlaylistTracks(playlist.ID).Subscribe(ctx)
	got := await(t, events, func(tracks []db.Track) bool { return len(tracks) == 2 })
	require.Equal(t, []int{1, 3}, trackIDs(got))

	// the missing track coming back restores its playlist position
	storage.tracks.Set([]db.Track{
		{IDBase: db.IDBase{ID: 1}, Title: "one"},
		{IDBase: db.IDBase{ID: 2}, Title: "two"},
		{IDBase: db.IDBase{ID: 3}, Title: "three"},
	})
	got = await(t, events, func(tracks []db.Track) bool { return len(tracks) == 3 })
	require.Equal(t, []int{1, 2, 3}, trackIDs(got))
}

func TestCreateUserPlaylistBlankName(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	exclusions, dbc := newExclusions(t)
	tracks := library.NewTrackRepository(storage, exclusions, clock.NewFrozen(1), grace)
	repo := library.NewPlaylistRepository(db.NewPlaylistStore(dbc), tracks, stubIcons{dir: t.TempDir()})

	_, err := repo.CreateUserPlaylist("   ")
	require.ErrorIs(t, err, library.ErrBlankPlaylistName)
}

func TestDeleteDelegatesToStorage(t *testing.T) {
	t.Parallel()
	storage := newFakeStorage()
	want := mediastore.RequiresUserConsent{Request: mediastore.ConsentRequest{ID: "abc", TrackIDs: []int{7}}}
	storage.deleteFn = func(trackIDs []int) (mediastore.DeleteResult, error) {
		require.Equal(t, []int{7}, trackIDs)
		return want, nil
	}
	exclusions, _ := newExclusions(t)
	repo := library.NewTrackRepository(storage, exclusions, clock.NewFrozen(1), grace)

	result, err := repo.DeleteTracks(context.Background(), []int{7})
	require.NoError(t, err)
	require.Equal(t, want, result)
}
