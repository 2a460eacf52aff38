package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/statusrelay/internal/fetcher"
	"github.com/hazz-dev/statusrelay/internal/registry"
	"github.com/hazz-dev/statusrelay/internal/storage"
)

// InvocationStore defines the invocation log queries the server needs.
type InvocationStore interface {
	RecentInvocations(ctx context.Context, limit, offset int) ([]storage.Invocation, int, error)
	StatusCounts(ctx context.Context) (map[string]int, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	registry *registry.Registry
	fetcher  fetcher.Fetcher
	store    InvocationStore
	metrics  http.Handler
	router   chi.Router
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore serves the invocation log under /api/invocations.
func WithStore(store InvocationStore) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics serves h under /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new Server and registers all routes.
func New(reg *registry.Registry, f fetcher.Fetcher, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		fetcher:  f,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/endpoints", s.handleListEndpoints)
	r.Get("/api/report", s.handleReport)
	if s.store != nil {
		r.Get("/api/invocations", s.handleListInvocations)
		r.Get("/api/invocations/stats", s.handleInvocationStats)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
}

// --- Response helpers ---

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Names())
}

// outcomeJSON never carries the underlying error text.
type outcomeJSON struct {
	Endpoint   string                `json:"endpoint"`
	Outcome    string                `json:"outcome"`
	StatusCode int                   `json:"status_code,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
	Report     *fetcher.HealthReport `json:"report,omitempty"`
}

type reportResponse struct {
	Target   string        `json:"target"`
	Outcomes []outcomeJSON `json:"outcomes"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")

	endpoints, err := s.registry.Resolve(target)
	var unknown *registry.UnknownTargetError
	if errors.As(err, &unknown) {
		writeError(w, http.StatusNotFound, unknown.Error())
		return
	}

	outcomes := fetcher.FetchAll(r.Context(), s.fetcher, endpoints)
	if r.Context().Err() != nil {
		return
	}

	resp := reportResponse{Target: target, Outcomes: make([]outcomeJSON, 0, len(outcomes))}
	for _, o := range outcomes {
		resp.Outcomes = append(resp.Outcomes, outcomeJSON{
			Endpoint:   o.Endpoint.Name,
			Outcome:    o.Label(),
			StatusCode: o.StatusCode,
			DurationMs: o.Duration.Milliseconds(),
			Report:     o.Report,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type invocationsResponse struct {
	Invocations []storage.Invocation `json:"invocations"`
	Total       int                  `json:"total"`
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 1000

	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	invs, total, err := s.store.RecentInvocations(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("RecentInvocations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, invocationsResponse{
		Invocations: invs,
		Total:       total,
	})
}

func (s *Server) handleInvocationStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.StatusCounts(r.Context())
	if err != nil {
		s.logger.Error("StatusCounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
