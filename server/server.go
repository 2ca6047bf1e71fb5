// Package server exposes the library, usage rankings, browse tree, and queue
// over HTTP as JSON.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Server struct {
	*http.Server
}

func New(ctrl *Controller, listenAddr string) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         listenAddr,
			Handler:      ctrl.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Serve blocks until the context is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()
	log.Info().Str("addr", s.Addr).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func snapshotContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), snapshotTimeout)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Debug().
			Int("status", sw.status).
			Str("method", r.Method).
			Stringer("url", r.URL).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
