// Package api exposes the ledger, job progression and leaderboard over
// HTTP/JSON under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/jobs"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/internal/domain/leaderboard"
	"github.com/okian/tally/internal/domain/progression"
	"github.com/okian/tally/pkg/logger"
)

// Header names understood by the API.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderPermissions    = "X-Permissions"
	HeaderReplay         = "Idempotent-Replay"
)

// PlayerRegistry stores display names.
type PlayerRegistry interface {
	Register(ctx context.Context, id, name string) error
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Dependencies bundles the components the handlers call.
type Dependencies struct {
	Ledger      *ledger.Ledger
	Progression *progression.Progression
	Leaderboard *leaderboard.Cache
	Players     PlayerRegistry
	Deduper     dedupe.Deduper
	Stats       StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps    Dependencies
	origins []string
	logger  logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, origins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderIdempotencyKey, HeaderPermissions},
		ExposedHeaders: []string{HeaderReplay},
	}))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", HandleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/currencies", s.listCurrencies)
		r.Get("/jobs", s.listJobs)
		r.Get("/leaderboard", s.getLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.Idempotency)
			r.Put("/players/{id}", s.registerPlayer)
		})

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Use(accountID)
			r.Get("/balances", s.getBalances)
			r.Get("/balances/{currency}", s.getBalance)
			r.Get("/job", s.getJob)
			r.Get("/jobs/{job}", s.getJobStats)
			r.Get("/job/options", s.getOptions)

			r.Group(func(r chi.Router) {
				r.Use(s.Idempotency)
				r.Put("/balances/{currency}", s.setBalance)
				r.Post("/balances/{currency}/deposit", s.deposit)
				r.Post("/balances/{currency}/withdraw", s.withdraw)
				r.Post("/balances/{currency}/reset", s.resetBalance)
				r.Post("/reset", s.resetBalances)
				r.Post("/transfers", s.transfer)
				r.Put("/job", s.setJob)
				r.Put("/job/level", s.setLevel)
				r.Post("/job/exp", s.grantExp)
				r.Post("/job/notifications/toggle", s.toggleNotifications)
				r.Post("/job/options/{option}/toggle", s.toggleOption)
			})
		})
	})
	return r
}

type accountKey struct{}

// accountID validates the {id} path segment and stores its canonical form.
func accountID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey{}, id)))
	})
}

func parseID(raw string) (string, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", WrapKind("api.parse_id", ErrInvalidID, err)
	}
	return u.String(), nil
}

func idFrom(r *http.Request) string {
	id, _ := r.Context().Value(accountKey{}).(string)
	return id
}

// principal builds the requesting principal from the permissions header.
func principal(r *http.Request) jobs.Principal {
	var perms []string
	if h := r.Header.Get(HeaderPermissions); h != "" {
		perms = strings.Split(h, ",")
	}
	return jobs.NewPermissions(idFrom(r), perms...)
}

// open returns the account of the request, creating it when absent.
func (s *Server) open(w http.ResponseWriter, r *http.Request, op string) (*ledger.Account, bool) {
	acct, err := s.deps.Ledger.Open(r.Context(), idFrom(r))
	if err != nil {
		s.logger.Warn(r.Context(), "open account failed", logger.String("account", idFrom(r)), logger.Error(err))
		writeError(w, Wrap(op, err))
		return nil, false
	}
	return acct, true
}

func decode(r *http.Request, op string, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
