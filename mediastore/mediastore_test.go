package mediastore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/mediastore"
	"go.senan.xyz/chorus/permission"
	"go.senan.xyz/chorus/stream"
)

type fakePerms struct {
	state *stream.Var[permission.Permissions]
}

func newFakePerms(p permission.Permissions) *fakePerms {
	return &fakePerms{state: stream.NewVar(p)}
}

func (f *fakePerms) Permissions() stream.Stream[permission.Permissions] { return f.state }
func (f *fakePerms) Refresh() permission.Permissions                    { return f.state.Latest() }

type harness struct {
	db    *db.DB
	scan  *stream.Var[int64]
	perms *fakePerms
	store *mediastore.Store
	dir   string
}

func newHarness(t *testing.T, options mediastore.Options) *harness {
	t.Helper()
	dbc, err := db.NewMock()
	require.NoError(t, err)
	require.NoError(t, dbc.Migrate(db.MigrationContext{}))
	t.Cleanup(func() { dbc.Close() })

	h := &harness{
		db:    dbc,
		scan:  stream.NewVar[int64](0),
		perms: newFakePerms(permission.Permissions{CanReadAudioFiles: true, CanWriteAudioFiles: true}),
		dir:   t.TempDir(),
	}
	if options.Grace == 0 {
		options.Grace = 50 * time.Millisecond
	}
	h.store = mediastore.New(dbc, h.scan, h.perms, options)
	return h
}

func (h *harness) addTrack(t *testing.T, title string) db.Track {
	t.Helper()
	path := filepath.Join(h.dir, title+".flac")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	track := db.Track{Title: title, Path: path, Size: 5}
	require.NoError(t, h.db.Create(&track).Error)
	return track
}

// await reads events until pred holds, failing the test after five seconds.
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

func TestTracksGatedByReadPermission(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{})
	h.addTrack(t, "one")
	h.perms.state.Set(permission.Permissions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := h.store.Tracks().Subscribe(ctx)
	await(t, events, func(tracks []db.Track) bool { return len(tracks) == 0 })

	h.perms.state.Set(permission.Permissions{CanReadAudioFiles: true})
	tracks := await(t, events, func(tracks []db.Track) bool { return len(tracks) == 1 })
	require.Equal(t, "one", tracks[0].Title)
}

func TestTracksFollowScanEvents(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{})
	h.addTrack(t, "one")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := h.store.Tracks().Subscribe(ctx)
	await(t, events, func(tracks []db.Track) bool { return len(tracks) == 1 })

	h.addTrack(t, "two")
	h.scan.Set(1)
	await(t, events, func(tracks []db.Track) bool { return len(tracks) == 2 })
}

func TestDeleteWithoutWritePermission(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{})
	track := h.addTrack(t, "one")
	h.perms.state.Set(permission.Permissions{CanReadAudioFiles: true})

	result, err := h.store.DeleteTracks(context.Background(), []int{track.ID})
	require.NoError(t, err)
	require.Equal(t, mediastore.RequiresPermission{Permission: mediastore.PermissionWriteAudioFiles}, result)
	require.FileExists(t, track.Path)
}

func TestDeleteRemovesFileAndRow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{})
	track := h.addTrack(t, "one")
	keep := h.addTrack(t, "two")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := h.store.Tracks().Subscribe(ctx)
	await(t, events, func(tracks []db.Track) bool { return len(tracks) == 2 })

	result, err := h.store.DeleteTracks(ctx, []int{track.ID})
	require.NoError(t, err)
	require.Equal(t, mediastore.Deleted{Count: 1}, result)
	require.NoFileExists(t, track.Path)
	require.FileExists(t, keep.Path)

	tracks := await(t, events, func(tracks []db.Track) bool { return len(tracks) == 1 })
	require.Equal(t, keep.ID, tracks[0].ID)
}

func TestDeleteConsentFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{RequireDeleteConsent: true})
	track := h.addTrack(t, "one")

	ctx := context.Background()
	result, err := h.store.DeleteTracks(ctx, []int{track.ID})
	require.NoError(t, err)
	consent, ok := result.(mediastore.RequiresUserConsent)
	require.True(t, ok)
	require.NotEmpty(t, consent.Request.ID)
	require.Equal(t, []int{track.ID}, consent.Request.TrackIDs)
	require.FileExists(t, track.Path)

	result, err = h.store.CompleteDelete(ctx, consent.Request.ID)
	require.NoError(t, err)
	require.Equal(t, mediastore.Deleted{Count: 1}, result)
	require.NoFileExists(t, track.Path)

	_, err = h.store.CompleteDelete(ctx, consent.Request.ID)
	require.ErrorIs(t, err, mediastore.ErrNoConsentRequest)
}

func TestDeleteToleratesFailedRemovals(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{})

	// a non-empty directory can't be removed, standing in for any file
	// the OS refuses to delete
	stuckPath := filepath.Join(h.dir, "stuck")
	require.NoError(t, os.MkdirAll(filepath.Join(stuckPath, "inner"), 0o755))
	stuck := db.Track{Title: "stuck", Path: stuckPath, Size: 5}
	require.NoError(t, h.db.Create(&stuck).Error)
	gone := h.addTrack(t, "gone")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := h.store.Tracks().Subscribe(ctx)
	await(t, events, func(tracks []db.Track) bool { return len(tracks) == 2 })

	result, err := h.store.DeleteTracks(ctx, []int{stuck.ID, gone.ID})
	require.NoError(t, err)
	require.Equal(t, mediastore.Deleted{Count: 1}, result)
	require.NoFileExists(t, gone.Path)
	require.DirExists(t, stuck.Path)

	// the survivor keeps its row and the stream reflects the partial delete
	tracks := await(t, events, func(tracks []db.Track) bool { return len(tracks) == 1 })
	require.Equal(t, stuck.ID, tracks[0].ID)
}

func TestDeleteMissingTrackIsCounted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, mediastore.Options{})

	result, err := h.store.DeleteTracks(context.Background(), []int{999})
	require.NoError(t, err)
	require.Equal(t, mediastore.Deleted{Count: 0}, result)
}
