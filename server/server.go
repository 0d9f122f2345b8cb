package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/dispatch"
	"github.com/parleyhq/parley/exploration"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/session"
)

// defaultMaxRequestBodySize bounds inbound JSON bodies (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Options configure the HTTP server.
type Options struct {
	Logger logging.Logger

	// AuthToken, when set, is required as a bearer token on every request.
	AuthToken string

	// AllowedOrigins for CORS. Defaults to none.
	AllowedOrigins []string

	// MaxRequestBodySize bounds request bodies in bytes.
	MaxRequestBodySize int64
}

// Server routes HTTP requests to the dispatcher and the stores.
type Server struct {
	dispatcher    *dispatch.Dispatcher
	registry      *agent.Registry
	exploration   *exploration.Service
	conversations core.ConversationStore
	sessions      session.Store
	opts          Options
}

// New creates the HTTP server.
func New(
	d *dispatch.Dispatcher,
	registry *agent.Registry,
	expl *exploration.Service,
	conversations core.ConversationStore,
	sessions session.Store,
	optFns ...func(o *Options),
) *Server {
	opts := Options{
		Logger:             logging.NoOpLogger{},
		MaxRequestBodySize: defaultMaxRequestBodySize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{
		dispatcher:    d,
		registry:      registry,
		exploration:   expl,
		conversations: conversations,
		sessions:      sessions,
		opts:          opts,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(CORS(s.opts.AllowedOrigins))
	}

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(s.opts.AuthToken))

		r.Route("/api", func(r chi.Router) {
			r.Get("/agents", s.handleListAgents)

			r.Route("/chat", func(r chi.Router) {
				r.Post("/message", s.handleChatMessage)
				r.Get("/sessions/{id}", s.handleGetSession)
				r.Delete("/sessions/{id}", s.handleDeleteSession)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", s.handleCreateConversation)
				r.Get("/", s.handleListConversations)
				r.Get("/{id}", s.handleGetConversation)
				r.Delete("/{id}", s.handleDeleteConversation)
				r.Post("/{id}/messages/stream", s.handleConversationStream)
				r.Post("/{id}/exploration/answer", s.handleExplorationAnswer)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
