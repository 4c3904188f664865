// Package api serves workflow editing and snapshot storage over HTTP.
//
// Every response is JSON with a "success" flag. Failures carry "error" (a
// message) and "code" (a pkg/errors code):
//
//	400  MALFORMED_INPUT, INVALID_INPUT, INVALID_PATH
//	404  NOT_FOUND, SNAPSHOT_NOT_FOUND
//	422  STRUCTURAL
//	500  everything else
//
// Routes:
//
//	GET    /healthz
//	POST   /api/workflow/normalize
//	POST   /api/workflow/connect
//	POST   /api/workflow/disconnect
//	GET    /api/snapshots?workflow_id=
//	POST   /api/snapshots
//	GET    /api/snapshots/{id}
//	DELETE /api/snapshots/{id}
//	PUT    /api/snapshots/{id}/title
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/workgraph/pkg/audit"
	"github.com/matzehuels/workgraph/pkg/buildinfo"
	"github.com/matzehuels/workgraph/pkg/schema"
	"github.com/matzehuels/workgraph/pkg/snapshot"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// Options configures a Server.
type Options struct {
	// Store backs the snapshot routes. Nil disables them (501).
	Store snapshot.Store

	// Schemas resolves widget names during normalize. Nil leaves widgets
	// generic.
	Schemas       schema.Provider
	SchemaTimeout time.Duration

	// Sink receives an audit event for every connection change.
	Sink audit.Sink

	Logger *log.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	store         snapshot.Store
	schemas       schema.Provider
	schemaTimeout time.Duration
	sink          audit.Sink
	logger        *log.Logger
}

// New creates a server.
func New(opts Options) *Server {
	s := &Server{
		store:         opts.Store,
		schemas:       opts.Schemas,
		schemaTimeout: opts.SchemaTimeout,
		sink:          opts.Sink,
		logger:        opts.Logger,
	}
	if s.sink == nil {
		s.sink = audit.Nop{}
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "INVALID_INPUT", "method not allowed")
	})

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/workflow", func(r chi.Router) {
			r.Post("/normalize", s.normalize)
			r.Post("/connect", s.connect)
			r.Post("/disconnect", s.disconnect)
		})
		r.Route("/snapshots", func(r chi.Router) {
			r.Use(s.requireStore)
			r.Get("/", s.listSnapshots)
			r.Post("/", s.saveSnapshot)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.loadSnapshot)
				r.Delete("/", s.deleteSnapshot)
				r.Put("/title", s.renameSnapshot)
			})
		})
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeFailure(w, http.StatusNotImplemented, "UNSUPPORTED", "snapshot storage is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok", "version": buildinfo.Version})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
