package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/parley-sh/parley/internal/convergence"
	"github.com/parley-sh/parley/internal/llm"
	"github.com/parley-sh/parley/internal/store"
)

// SessionRunner drives one convergence session.
type SessionRunner interface {
	Run(ctx context.Context, query string, cfg convergence.Config) (*convergence.Session, error)
}

// SessionStore persists completed sessions and usage increments.
type SessionStore interface {
	SaveSession(ctx context.Context, taskID string, orgID uuid.UUID, session *convergence.Session) (uuid.UUID, error)
	GetSession(ctx context.Context, taskID string) (*store.SessionRecord, error)
	RecordUsage(ctx context.Context, orgID uuid.UUID, tokens llm.Usage, cost float64) error
}

// SandboxManager is the sandbox lifecycle surface.
type SandboxManager interface {
	Spawn(ctx context.Context, orgID uuid.UUID, name string) (*store.Sandbox, error)
	Status(ctx context.Context, id uuid.UUID) (*store.Sandbox, error)
	List(ctx context.Context, orgID uuid.UUID) ([]store.Sandbox, error)
	Destroy(ctx context.Context, id uuid.UUID) error
}

// Publisher announces completed sessions on the event bus.
type Publisher interface {
	Publish(subject string, data any) error
}

type Server struct {
	router    *chi.Mux
	port      int
	runner    SessionRunner
	store     SessionStore
	sandboxes SandboxManager
	publisher Publisher
	logger    *slog.Logger
}

func NewServer(port int, apiToken string, runner SessionRunner, st SessionStore, sandboxes SandboxManager, publisher Publisher, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		runner:    runner,
		store:     st,
		sandboxes: sandboxes,
		publisher: publisher,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/parley/status", s.status)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/api/v1/converge", s.converge)
		r.Get("/api/v1/sessions/{taskID}", s.getSession)
		r.Post("/api/v1/sandboxes", s.spawnSandbox)
		r.Get("/api/v1/sandboxes", s.listSandboxes)
		r.Get("/api/v1/sandboxes/{id}", s.sandboxStatus)
		r.Delete("/api/v1/sandboxes/{id}", s.destroySandbox)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests that lack the configured token. An
// empty token disables auth (local development).
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "parley",
		"status":  "ready",
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
