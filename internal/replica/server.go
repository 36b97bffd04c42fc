// Package replica provides the HTTP server backing the real (non-simulated)
// remote replica: one full snapshot per user, stored and fetched whole.
package replica

import (
	"encoding/json/v2"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/readwellapp/readwell-sync/internal/auth"
	"github.com/readwellapp/readwell-sync/internal/domain"
	"github.com/readwellapp/readwell-sync/internal/http/response"
	"github.com/readwellapp/readwell-sync/internal/ratelimit"
	"github.com/readwellapp/readwell-sync/internal/store"
)

// Server holds dependencies for the replica HTTP handlers.
type Server struct {
	store   *store.Store
	tokens  *auth.TokenService
	limiter *ratelimit.KeyedLimiter
	router  *chi.Mux
	logger  *slog.Logger
}

// NewServer creates a replica server with all routes configured.
func NewServer(s *store.Store, tokens *auth.TokenService, limiter *ratelimit.KeyedLimiter, logger *slog.Logger) *Server {
	srv := &Server{
		store:   s,
		tokens:  tokens,
		limiter: limiter,
		router:  chi.NewRouter(),
		logger:  logger,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)

	// The userID segment sits on the outer pattern so requireAuth sees it.
	s.router.Route("/api/v1/replica/{userID}", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Use(s.rateLimit)
		r.Get("/", s.handleDownload)
		r.Put("/", s.handleUpload)
		r.Delete("/", s.handleDelete)
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"}, s.logger)
}

// handleDownload returns the user's stored snapshot, or 404 if the user has
// never uploaded.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	snapshot, err := s.store.ReplicaSnapshot(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			response.NotFound(w, "no snapshot for user", s.logger)
			return
		}
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, snapshot, s.logger)
}

// handleUpload replaces the user's stored snapshot wholesale. Snapshots are
// never partially written.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var snapshot domain.Snapshot
	if err := json.UnmarshalRead(r.Body, &snapshot); err != nil {
		response.BadRequest(w, "malformed snapshot", s.logger)
		return
	}
	if snapshot.UserID != userID {
		response.BadRequest(w, "snapshot user does not match path", s.logger)
		return
	}

	if err := s.store.PutReplicaSnapshot(r.Context(), &snapshot); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.logger.Debug("stored snapshot",
		"user_id", userID,
		"version", snapshot.Version,
	)
	response.NoContent(w)
}

// handleDelete removes the user's stored snapshot, resetting their replica
// state. Deleting a never-uploaded snapshot succeeds.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := s.store.DeleteReplicaSnapshot(r.Context(), userID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.logger.Info("deleted snapshot", "user_id", userID)
	response.NoContent(w)
}
