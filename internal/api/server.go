package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"smoothbdr/internal/config"
	"smoothbdr/internal/logging"
	"smoothbdr/internal/queue"
	"smoothbdr/internal/supervisor"
)

const maxBodyBytes = 1 << 20

// Controller applies worker and system toggles and reports health. The
// supervisor implements it; the Ledger flags it writes are what workers obey.
type Controller interface {
	Snapshot(ctx context.Context) supervisor.Snapshot
	SetWorkerEnabled(ctx context.Context, name string, enabled bool) error
	SetSystemRunning(ctx context.Context, running bool) error
}

// Server is the HTTP control surface.
type Server struct {
	bind   string
	logger *slog.Logger
	queues *QueueService
	ctrl   Controller

	router   chi.Router
	server   *http.Server
	listener net.Listener
}

// NewServer builds the router for the configured API section.
func NewServer(cfg *config.Config, store QueueStore, ctrl Controller, logger *slog.Logger) (*Server, error) {
	if cfg == nil || store == nil || ctrl == nil {
		return nil, errors.New("api server requires config, store and controller")
	}
	s := &Server{
		bind:   cfg.API.Bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		queues: NewQueueService(store),
		ctrl:   ctrl,
	}
	s.router = s.setupRouter(cfg.API)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter(cfg config.API) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(cfg.Token))

		r.Get("/health", s.handleHealth)
		r.Get("/workers", s.handleWorkers)
		r.Post("/workers/{name}/enable", s.handleWorkerToggle(true))
		r.Post("/workers/{name}/disable", s.handleWorkerToggle(false))
		r.Post("/system/start", s.handleSystemToggle(true))
		r.Post("/system/stop", s.handleSystemToggle(false))
		r.Post("/leads", s.handleSubmitLead)

		r.Get("/queues", s.handleQueues)
		r.Route("/queues/{queue}", func(r chi.Router) {
			r.Get("/items", s.handleQueueItems)
			r.Get("/items/{id}", s.handleQueueItem)
			r.Post("/items/{id}/approve", s.handleApprove)
			r.Post("/retry", s.handleRetry)
		})
	})
	return r
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr is the bound listener address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits briefly for in-flight ones.
func (s *Server) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Debug("http request",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", ww.Status()),
				logging.Int("bytes", ww.BytesWritten()),
				logging.Duration("duration", time.Since(start)),
				logging.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot(r.Context())
	status := http.StatusOK
	if snap.Health == supervisor.SystemUnknown {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, snap)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot(r.Context())
	if snap.Health == supervisor.SystemUnknown {
		s.writeError(w, http.StatusServiceUnavailable, snap.Error)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"workers": snap.Workers})
}

func (s *Server) handleWorkerToggle(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := s.ctrl.SetWorkerEnabled(r.Context(), name, enabled); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, ToggleResponse{Name: name, Enabled: enabled})
	}
}

func (s *Server) handleSystemToggle(running bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ctrl.SetSystemRunning(r.Context(), running); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, ToggleResponse{Name: "system", Enabled: running})
	}
}

func (s *Server) handleSubmitLead(w http.ResponseWriter, r *http.Request) {
	var req LeadRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	item, err := s.queues.SubmitLead(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, LeadResponse{Item: item})
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queues.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QueueStatsResponse{Queues: stats})
}

func (s *Server) handleQueueItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter queue.ListFilter
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.LeadRef = strings.TrimSpace(query.Get("lead_ref"))
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	items, err := s.queues.List(r.Context(), chi.URLParam(r, "queue"), filter)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QueueListResponse{Items: items})
}

func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	item, err := s.queues.Describe(r.Context(), chi.URLParam(r, "queue"), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QueueItemResponse{Item: *item})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.itemID(w, r)
	if !ok {
		return
	}
	item, err := s.queues.Approve(r.Context(), chi.URLParam(r, "queue"), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QueueItemResponse{Item: *item})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	name := chi.URLParam(r, "queue")
	n, err := s.queues.Retry(r.Context(), name, req.IDs)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RetryResponse{Queue: name, Retried: n})
}

func (s *Server) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid queue item id")
		return 0, false
	}
	return id, true
}

// decodeBody reads an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrUnknownQueue),
		errors.Is(err, queue.ErrNotFound),
		errors.Is(err, supervisor.ErrUnknownStage):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
