package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/ent0n29/convotone/internal/config"
	"github.com/ent0n29/convotone/internal/logstore"
	"github.com/ent0n29/convotone/internal/observability"
	"github.com/ent0n29/convotone/internal/tone"
)

type LogRepository interface {
	ListAll(ctx context.Context) ([]logstore.Document, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type ToneService interface {
	Tone(ctx context.Context, conversationID string) tone.Result
	Configured() bool
}

type Server struct {
	cfg     config.Config
	logs    LogRepository
	tones   ToneService
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func New(cfg config.Config, logs LogRepository, tones ToneService, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		logs:    logs,
		tones:   tones,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", s.handleListLogs)
		r.Delete("/logs", s.handleDeleteLogs)
		r.Get("/tone/{conversationID}", s.handleTone)
		r.Get("/perf/latency", s.handlePerfLatency)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"store_backend":    s.cfg.StoreBackend,
		"store_policy":     s.cfg.StoreConnectionPolicy,
		"tone_configured":  s.tones != nil && s.tones.Configured(),
		"store_collection": s.cfg.StoreCollection,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
