package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"go.senan.xyz/chorus/browse"
	"go.senan.xyz/chorus/db"
	"go.senan.xyz/chorus/library"
	"go.senan.xyz/chorus/mediastore"
	"go.senan.xyz/chorus/queue"
	"go.senan.xyz/chorus/scanner"
	"go.senan.xyz/chorus/stream"
	"go.senan.xyz/chorus/usage"
)

const snapshotTimeout = 10 * time.Second

type Controller struct {
	Tracks    *library.TrackRepository
	Albums    *library.AlbumRepository
	Artists   *library.ArtistRepository
	Playlists *library.PlaylistRepository
	Usage     *usage.Manager
	Browser   *browse.Browser
	Queue     *queue.Queue
	Scanner   *scanner.Scanner
}

func (c *Controller) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logMiddleware)

	r.HandleFunc("/api/tracks", c.serveTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/excluded", c.serveExcludedTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/mostrated", c.serveMostRated).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/popular", c.servePopular).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/disposable", c.serveDisposable).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/delete", c.serveDeleteTracks).Methods(http.MethodPost)
	r.HandleFunc("/api/tracks/delete/{handle}", c.serveCompleteDelete).Methods(http.MethodPost)
	r.HandleFunc("/api/tracks/{id}/exclude", c.serveExclude).Methods(http.MethodPost)
	r.HandleFunc("/api/tracks/{id}/allow", c.serveAllow).Methods(http.MethodPost)
	r.HandleFunc("/api/tracks/{id}/played", c.servePlayed).Methods(http.MethodPost)

	r.HandleFunc("/api/albums", c.serveAlbums).Methods(http.MethodGet)
	r.HandleFunc("/api/albums/{id}/tracks", c.serveAlbumTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/artists", c.serveArtists).Methods(http.MethodGet)
	r.HandleFunc("/api/artists/{id}/albums", c.serveArtistAlbums).Methods(http.MethodGet)

	r.HandleFunc("/api/playlists", c.servePlaylists).Methods(http.MethodGet)
	r.HandleFunc("/api/playlists", c.serveCreatePlaylist).Methods(http.MethodPost)
	r.HandleFunc("/api/playlists/{id}", c.serveDeletePlaylist).Methods(http.MethodDelete)
	r.HandleFunc("/api/playlists/{id}/tracks", c.servePlaylistTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/playlists/{id}/tracks", c.serveAddToPlaylist).Methods(http.MethodPost)
	r.HandleFunc("/api/playlists/{id}/tracks/{trackID}", c.serveRemoveFromPlaylist).Methods(http.MethodDelete)

	r.HandleFunc("/api/browse/{id}", c.serveBrowse).Methods(http.MethodGet)

	r.HandleFunc("/api/queue", c.serveQueue).Methods(http.MethodGet)
	r.HandleFunc("/api/queue", c.serveSetQueue).Methods(http.MethodPost)
	r.HandleFunc("/api/queue/next", c.serveQueueNext).Methods(http.MethodPost)
	r.HandleFunc("/api/queue/prev", c.serveQueuePrev).Methods(http.MethodPost)
	r.HandleFunc("/api/queue/skip/{i}", c.serveQueueSkip).Methods(http.MethodPost)
	r.HandleFunc("/api/queue/shuffle", c.serveQueueShuffle).Methods(http.MethodPost)
	r.HandleFunc("/api/queue/clear", c.serveQueueClear).Methods(http.MethodPost)

	r.HandleFunc("/api/scan", c.serveScan).Methods(http.MethodPost)
	return r
}

func respond(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrNoSuchItem),
		errors.Is(err, db.ErrNoPlaylist),
		errors.Is(err, mediastore.ErrNoConsentRequest),
		errors.Is(err, browse.ErrNoChildren):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrBlankPlaylistName),
		errors.Is(err, browse.ErrBadSeparator),
		errors.Is(err, browse.ErrNotAnInt),
		errors.Is(err, browse.ErrBadPrefix):
		status = http.StatusBadRequest
	case errors.Is(err, scanner.ErrAlreadyScanning):
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// serveSnapshot answers with the current value of a stream.
func serveSnapshot[T any](w http.ResponseWriter, r *http.Request, s stream.Stream[T]) {
	ctx, cancel := snapshotContext(r)
	defer cancel()
	val, err := stream.First(ctx, s)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, val)
}

func pathID(r *http.Request, key string) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)[key])
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Controller) serveTracks(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Tracks.Tracks())
}

func (c *Controller) serveExcludedTracks(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Tracks.ExcludedTracks())
}

func (c *Controller) serveAlbums(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Albums.Albums())
}

func (c *Controller) serveAlbumTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	serveSnapshot(w, r, c.Albums.AlbumTracks(id))
}

func (c *Controller) serveArtists(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Artists.Artists())
}

func (c *Controller) serveArtistAlbums(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	serveSnapshot(w, r, c.Albums.ArtistAlbums(id))
}

func (c *Controller) serveMostRated(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Usage.MostRatedTracks())
}

func (c *Controller) servePopular(w http.ResponseWriter, r *http.Request) {
	since := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			respondErr(w, err)
			return
		}
		since = parsed
	}
	serveSnapshot(w, r, c.Usage.PopularTracksSince(since))
}

func (c *Controller) serveDisposable(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Usage.DisposableTracks())
}

func (c *Controller) serveExclude(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := c.Tracks.ExcludeTrack(id); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]int{"excluded": id})
}

func (c *Controller) serveAllow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := c.Tracks.AllowTrack(id); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]int{"allowed": id})
}

func (c *Controller) servePlayed(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := c.Usage.ReportCompletion(id); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]int{"played": id})
}

type trackIDsRequest struct {
	TrackIDs []int `json:"trackIds"`
}

func (c *Controller) serveDeleteTracks(w http.ResponseWriter, r *http.Request) {
	var req trackIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, err)
		return
	}
	result, err := c.Tracks.DeleteTracks(r.Context(), req.TrackIDs)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, deleteResultJSON(result))
}

func (c *Controller) serveCompleteDelete(w http.ResponseWriter, r *http.Request) {
	result, err := c.Tracks.CompleteDelete(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, deleteResultJSON(result))
}

func deleteResultJSON(result mediastore.DeleteResult) any {
	switch result := result.(type) {
	case mediastore.Deleted:
		return map[string]any{"status": "deleted", "count": result.Count}
	case mediastore.RequiresPermission:
		return map[string]any{"status": "requires-permission", "permission": result.Permission}
	case mediastore.RequiresUserConsent:
		return map[string]any{"status": "requires-consent", "handle": result.Request.ID, "trackIds": result.Request.TrackIDs}
	default:
		return map[string]any{"status": "unknown"}
	}
}

func (c *Controller) servePlaylists(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Playlists.Playlists())
}

type createPlaylistRequest struct {
	Name string `json:"name"`
}

func (c *Controller) serveCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, err)
		return
	}
	playlist, err := c.Playlists.CreateUserPlaylist(req.Name)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, playlist)
}

func (c *Controller) serveDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := c.Playlists.DeletePlaylist(id); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]int{"deleted": id})
}

func (c *Controller) servePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	serveSnapshot(w, r, c.Playlists.PlaylistTracks(id))
}

func (c *Controller) serveAddToPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	var req trackIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, err)
		return
	}
	if err := c.Playlists.AddToPlaylist(id, req.TrackIDs...); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]int{"added": len(req.TrackIDs)})
}

func (c *Controller) serveRemoveFromPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondErr(w, err)
		return
	}
	trackID, err := pathID(r, "trackID")
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := c.Playlists.RemoveFromPlaylist(id, trackID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]int{"removed": trackID})
}

func (c *Controller) serveBrowse(w http.ResponseWriter, r *http.Request) {
	id, err := browse.ParseID(mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	entries, err := c.Browser.ChildrenOf(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, entries)
}

func (c *Controller) serveQueue(w http.ResponseWriter, r *http.Request) {
	serveSnapshot(w, r, c.Queue.State())
}

func (c *Controller) serveSetQueue(w http.ResponseWriter, r *http.Request) {
	var req trackIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, err)
		return
	}
	ctx, cancel := snapshotContext(r)
	defer cancel()
	active, err := stream.First(ctx, c.Tracks.Tracks())
	if err != nil {
		respondErr(w, err)
		return
	}
	byID := make(map[int]db.Track, len(active))
	for _, track := range active {
		byID[track.ID] = track
	}
	items := make([]db.Track, 0, len(req.TrackIDs))
	for _, trackID := range req.TrackIDs {
		if track, ok := byID[trackID]; ok {
			items = append(items, track)
		}
	}
	c.Queue.SetItems(items)
	respond(w, map[string]int{"queued": len(items)})
}

func (c *Controller) serveQueueNext(w http.ResponseWriter, r *http.Request) {
	respond(w, map[string]bool{"moved": c.Queue.Next()})
}

func (c *Controller) serveQueuePrev(w http.ResponseWriter, r *http.Request) {
	respond(w, map[string]bool{"moved": c.Queue.Prev()})
}

func (c *Controller) serveQueueSkip(w http.ResponseWriter, r *http.Request) {
	i, err := pathID(r, "i")
	if err != nil {
		respondErr(w, err)
		return
	}
	c.Queue.Skip(i)
	respond(w, map[string]int{"index": i})
}

func (c *Controller) serveQueueShuffle(w http.ResponseWriter, r *http.Request) {
	c.Queue.Shuffle()
	respond(w, map[string]string{"status": "ok"})
}

func (c *Controller) serveQueueClear(w http.ResponseWriter, r *http.Request) {
	c.Queue.Clear()
	respond(w, map[string]string{"status": "ok"})
}

func (c *Controller) serveScan(w http.ResponseWriter, r *http.Request) {
	stats, err := c.Scanner.ScanAndClean(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, stats)
}
