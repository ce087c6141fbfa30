// Package api serves the assembled master table and its reports over REST.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"braindrain/internal/census"
	"braindrain/internal/master"
	"braindrain/internal/storage"
)

// TableSource yields the master table a request is answered from.
type TableSource interface {
	Table(ctx context.Context) (master.Table, error)
}

// SourceFunc adapts a function to TableSource.
type SourceFunc func(ctx context.Context) (master.Table, error)

// Table calls f.
func (f SourceFunc) Table(ctx context.Context) (master.Table, error) { return f(ctx) }

// FromAssembler answers from a live (usually cached) assembly.
func FromAssembler(a *master.Assembler) TableSource {
	return SourceFunc(a.Assemble)
}

// FromStore answers from the latest stored snapshot.
func FromStore(s storage.Store) TableSource {
	return SourceFunc(func(ctx context.Context) (master.Table, error) {
		snap, err := s.LatestSnapshot(ctx)
		if err != nil {
			return master.Table{}, err
		}
		return snap.Table, nil
	})
}

// Server provides REST API access to the master table.
type Server struct {
	source      TableSource
	store       storage.Store
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
	log         *zap.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.

	// Store, when set, exposes the snapshot listing.
	Store  storage.Store
	Logger *zap.Logger
}

// NewServer creates a new API server answering from src.
func NewServer(src TableSource, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		source:      src,
		store:       cfg.Store,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		log:         log,
	}
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Mount("/api/v1", s.Router())

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("api starting",
		zap.String("addr", "http://localhost"+srv.Addr),
		zap.Bool("auth", s.authEnabled))

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("api shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/states", s.handleStates)
	r.Get("/states/{state}", s.handleState)
	r.Get("/segments", s.handleSegments)
	r.Get("/summary", s.handleSummary)
	r.Get("/trend", s.handleTrend)
	r.Get("/compare", s.handleCompare)
	if s.store != nil {
		r.Get("/snapshots", s.handleSnapshots)
	}

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// table loads the current master table, writing an error response and
// returning false on failure.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (master.Table, bool) {
	t, err := s.source.Table(r.Context())
	if err == nil {
		return t, true
	}

	var dsErr *census.DataSourceError
	switch {
	case errors.Is(err, storage.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, "No snapshot available yet")
	case errors.As(err, &dsErr):
		s.log.Warn("census unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("load table", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return master.Table{}, false
}

// Helper functions.

// writeJSON encodes before writing the status; encode failures become a 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("encode response", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// splitList parses a comma separated query value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
