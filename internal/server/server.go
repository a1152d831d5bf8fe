// Package server exposes the chat relay over HTTP. POST /api/chat runs a
// retrieval-augmented turn and either returns the reply as plain text or
// relays the model's delta frames as an event stream, depending on the
// configured mode. The server is started by the `ragchat serve` command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/backfill"
	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/completion"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/store"
)

// maxBodyBytes caps request bodies on every JSON endpoint.
const maxBodyBytes = 1 << 20

// New constructs a Server from the provided services and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("server: chat service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Long enough for a streamed reply.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.Authenticator == nil {
		log.Warn("server: authentication disabled, all /api routes are open")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the mux and wraps it in the middleware chain
// cors → requestLogger → metrics → auth → mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	if s.deps.Completer != nil {
		mux.HandleFunc("POST /api/complete", s.handleComplete)
	}
	if s.deps.Searcher != nil {
		mux.HandleFunc("POST /api/search", s.handleSearch)
	}
	if s.deps.Backfill != nil {
		mux.HandleFunc("POST /api/embeddings/generate", s.handleGenerateEmbeddings)
		mux.HandleFunc("POST /api/embed", s.handleEmbed)
	}
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	h = authMiddleware(s.cfg.Authenticator, h)
	h = s.metricsMiddleware(mux, h)
	h = requestLogger(s.log, h)
	h = corsMiddleware(h)
	return h
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening",
			slog.String("addr", "http://"+s.httpServer.Addr),
			slog.String("chat_mode", s.deps.Chat.Mode()),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. Errors raised before the first byte
// produce the JSON error shape; once a stream has started, a failure can
// only end it early.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	mode := s.deps.Chat.Mode()
	start := time.Now()
	outcome := "error"
	defer func() {
		s.metrics.chatRequestsTotal.WithLabelValues(outcome, mode).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome, mode).Observe(time.Since(start).Seconds())
	}()

	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	res, err := s.deps.Chat.Handle(r.Context(), req)
	if err != nil {
		writeError(w, log, err)
		return
	}

	if mode == config.ModeSingle {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, res.Text); err != nil {
			log.Warn("chat: failed to write reply", slog.Any("error", err))
		}
		outcome = "ok"
		return
	}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()
	outcome = s.relay(r.Context(), w, res.Stream)
}

// relay copies frames to the client, flushing after each. It closes the
// client copy when done so an abandoned relay never holds the stream.
// Returns the request outcome label.
func (s *Server) relay(ctx context.Context, w http.ResponseWriter, frames *schema.StreamReader[completion.Frame]) string {
	log := logging.FromContext(ctx)
	defer frames.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		if ctx.Err() != nil {
			log.Info("chat: client disconnected mid-stream")
			return "canceled"
		}
		frame, err := frames.Recv()
		if errors.Is(err, io.EOF) {
			return "ok"
		}
		if err != nil {
			log.Error("chat: stream ended early", slog.Any("error", err))
			return "error"
		}
		if _, err := w.Write(frame); err != nil {
			log.Info("chat: client write failed, stopping relay", slog.Any("error", err))
			return "canceled"
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleComplete handles POST /api/complete: a bare completion of the query
// with no retrieval and no persistence.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, log, apperr.New(apperr.KindValidation, "Query is missing"))
		return
	}

	text, err := s.deps.Completer.Complete(r.Context(), []*schema.Message{schema.UserMessage(req.Query)})
	if err != nil {
		writeError(w, log, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

// handleSearch handles POST /api/search and returns the matches as JSON.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	matches, err := s.deps.Searcher.Search(r.Context(), req.Query)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	writeJSON(w, log, http.StatusOK, matches)
}

// handleGenerateEmbeddings handles POST /api/embeddings/generate by
// embedding every stored message that has no vector yet.
func (s *Server) handleGenerateEmbeddings(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	res, err := s.deps.Backfill.Run(r.Context())
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, generateResponse{
		Message:  "Embeddings generated",
		Embedded: res.Embedded,
		Failed:   res.Failed,
	})
}

// handleEmbed handles POST /api/embed, the queue worker endpoint. The body
// is a JSON array of jobs; each names one row to embed. Per-job failures are
// reported in the body, never as an HTTP error.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		http.Error(w, "expected json body", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	jobs, err := backfill.ParseJobs(data)
	if err != nil {
		log.Warn("embed: rejected job batch", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	completed, failed := s.deps.Backfill.ProcessJobs(r.Context(), jobs)
	log.Info("embed: finished processing jobs",
		slog.Int("completed_jobs", len(completed)),
		slog.Int("failed_jobs", len(failed)),
	)
	if completed == nil {
		completed = []backfill.Job{}
	}
	if failed == nil {
		failed = []backfill.FailedJob{}
	}

	w.Header().Set("x-completed-jobs", strconv.Itoa(len(completed)))
	w.Header().Set("x-failed-jobs", strconv.Itoa(len(failed)))
	writeJSON(w, log, http.StatusOK, embedResponse{CompletedJobs: completed, FailedJobs: failed})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
	})
}

// decodeJSON decodes a size-capped JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// statusFor maps a handler error to its HTTP status: 401 for authorization
// failures, 500 for everything else.
func statusFor(err error) int {
	if apperr.IsUnauthorized(err) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError logs err and writes it as {"error": msg}.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(err)
	log.Error("request failed",
		slog.Int("status", status),
		slog.String("kind", string(apperr.KindOf(err))),
		slog.Any("error", err),
	)
	writeJSON(w, log, status, errorResponse{Error: err.Error()})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
