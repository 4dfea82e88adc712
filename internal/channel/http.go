// Package channel exposes the QA service to the outside: an HTTP API and an
// optional Telegram bot.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"askbot/internal/domain"
	"askbot/internal/metrics"
)

const httpMaxBodySize = 1 << 20 // 1MB

// Asker answers one question; implemented by qa.Service.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

// ProviderStatus reports whether a provider in the chain has credentials.
// The health endpoint returns presence only and never probes upstream.
type ProviderStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
}

type HTTPServer struct {
	qa            Asker
	store         domain.CorpusSource
	providers     []ProviderStatus
	retrieverMode string
	version       string
	addr          string
	limiter       *rate.Limiter
	logger        *slog.Logger
	server        *http.Server
}

type HTTPServerConfig struct {
	Host          string
	Port          int
	QA            Asker
	Store         domain.CorpusSource
	Providers     []ProviderStatus
	RetrieverMode string

	// RateLimitRPS throttles /ask. Zero disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int

	Version string
	Logger  *slog.Logger
}

func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &HTTPServer{
		qa:            cfg.QA,
		store:         cfg.Store,
		providers:     cfg.Providers,
		retrieverMode: cfg.RetrieverMode,
		version:       cfg.Version,
		addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		limiter:       limiter,
		logger:        cfg.Logger,
	}
}

// Router builds the handler tree. Split from Start so tests can drive it
// through httptest without binding a port.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/metrics", metrics.Collector.Handler())
	r.Post("/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/ask", s.handleAskGet)
		r.Post("/ask", s.handleAskPost)
	})

	return r
}

// Start serves until ctx is cancelled, then drains with a bounded timeout.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      150 * time.Second, // synthesis can sit on slow providers
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("http server started", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown", "error", err)
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// --- Handlers ---

func (s *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "askbot",
		"version": s.version,
		"endpoints": map[string]string{
			"ask":     "/ask?q=YOUR_QUESTION",
			"health":  "/health",
			"stats":   "/stats",
			"refresh": "POST /refresh",
			"metrics": "/metrics",
		},
	})
}

type healthCorpus struct {
	Loaded     bool  `json:"loaded"`
	Messages   int   `json:"messages"`
	AgeSeconds int64 `json:"age_seconds"`
	Degraded   bool  `json:"degraded"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var corpus healthCorpus
	if c, ok := s.store.Snapshot(); ok {
		corpus = healthCorpus{
			Loaded:     true,
			Messages:   c.Len(),
			AgeSeconds: int64(time.Since(c.FetchedAt).Seconds()),
			Degraded:   c.Degraded,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"corpus":         corpus,
		"providers":      s.providers,
		"retriever_mode": s.retrieverMode,
	})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "message archive unreachable")
		return
	}
	writeJSON(w, http.StatusOK, c.Stats())
}

func (s *HTTPServer) handleAskGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		q = r.URL.Query().Get("question")
	}
	s.answer(w, r, q)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *HTTPServer) handleAskPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, httpMaxBodySize)
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.answer(w, r, req.Question)
}

func (s *HTTPServer) answer(w http.ResponseWriter, r *http.Request, question string) {
	ans, err := s.qa.Ask(r.Context(), question)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuestionEmpty), errors.Is(err, domain.ErrQuestionTooLong):
			writeError(w, http.StatusBadRequest, err.Error())
		case r.Context().Err() != nil:
			// Client went away; nothing left to write to.
		default:
			s.logger.Error("unexpected ask error", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.store.Invalidate()
	c, err := s.store.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "refresh failed: message archive unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed":  true,
		"messages":   c.Len(),
		"refresh_id": c.RefreshID,
		"degraded":   c.Degraded,
		"fetched_at": c.FetchedAt,
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
