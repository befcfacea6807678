// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/auth"
	"github.com/mirrorlens/mirrorlens/internal/config"
	"github.com/mirrorlens/mirrorlens/internal/events"
	"github.com/mirrorlens/mirrorlens/internal/logging"
	"github.com/mirrorlens/mirrorlens/internal/metrics"
	"github.com/mirrorlens/mirrorlens/internal/mirror"
	"github.com/mirrorlens/mirrorlens/internal/remote"
	"github.com/mirrorlens/mirrorlens/internal/search"
)

// Server is the HTTP server.
type Server struct {
	auth        *auth.Auth
	drive       *remote.Client
	store       *mirror.Store
	syncer      *mirror.Syncer
	engine      *search.Engine
	resultCache *search.ResultCache
	broadcaster *events.Broadcaster
	pageSize    int
}

// NewServer creates a new server.
func NewServer(
	authHandler *auth.Auth,
	drive *remote.Client,
	store *mirror.Store,
	syncer *mirror.Syncer,
	engine *search.Engine,
	resultCache *search.ResultCache,
	broadcaster *events.Broadcaster,
	cfg *config.Config,
) *Server {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Server{
		auth:        authHandler,
		drive:       drive,
		store:       store,
		syncer:      syncer,
		engine:      engine,
		resultCache: resultCache,
		broadcaster: broadcaster,
		pageSize:    pageSize,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	authed := func(path string, h http.HandlerFunc) http.Handler {
		return metrics.Middleware(path, s.auth.Middleware(h))
	}

	mux.Handle("POST /api/v1/sync", authed("/api/v1/sync", s.handleSync))
	mux.Handle("GET /api/v1/search", authed("/api/v1/search", s.handleSearch))
	mux.Handle("GET /api/v1/files", authed("/api/v1/files", s.handleBrowse))
	mux.Handle("POST /api/v1/files", authed("/api/v1/files", s.handleUpload))
	mux.Handle("DELETE /api/v1/files/{id}", authed("/api/v1/files/{id}", s.handleDelete))
	mux.Handle("GET /api/v1/content/{id}", authed("/api/v1/content/{id}", s.handleContent))
	mux.Handle("GET /api/v1/events", authed("/api/v1/events", s.handleEvents))

	return s.requestID(mux)
}

// requestID tags every request with an ID for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, map[string]string{"error": msg})
}

// pageOf slices one page out of a result list.
func pageOf[T any](items []T, page, size int) ([]T, int) {
	if page < 1 {
		page = 1
	}
	totalPages := (len(items) + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}, totalPages
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], totalPages
}
