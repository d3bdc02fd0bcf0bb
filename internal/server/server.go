// Package server implements the HTTP server that exposes the portfolio
// assistant via a REST/SSE API. The server is started by the `pfai serve`
// CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pfai-go/internal/cache"
	"github.com/54b3r/pfai-go/internal/logging"
	"github.com/54b3r/pfai-go/internal/session"
)

// New constructs a Server from the provided conversation manager, result
// cache, and config.
func New(mgr *session.Manager, resultCache *cache.Cache, cfg *Config) (*Server, error) {
	if mgr == nil {
		return nil, fmt.Errorf("server: session manager must not be nil")
	}
	if resultCache == nil {
		return nil, fmt.Errorf("server: cache must not be nil")
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
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		chat:    mgr,
		cache:   resultCache,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not configured — authentication disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.route("chat", http.HandlerFunc(s.handleChat), rl))
	mux.Handle("GET /api/history", s.route("history", http.HandlerFunc(s.handleHistory), rl))
	mux.Handle("GET /api/stats", s.route("stats", http.HandlerFunc(s.handleStats), rl))
	mux.Handle("POST /api/session/clear", s.route("session_clear", http.HandlerFunc(s.handleSessionClear), rl))
	mux.Handle("GET /api/suggestions", s.route("suggestions", http.HandlerFunc(s.handleSuggestions), rl))
	mux.Handle("GET /api/cache/stats", s.route("cache_stats", http.HandlerFunc(s.handleCacheStats), rl))
	mux.Handle("POST /api/cache/clear", s.route("cache_clear", http.HandlerFunc(s.handleCacheClear), rl))

	// Health, readiness, and metrics skip auth and rate limiting so probes
	// and scrapers keep working when the API is locked down.
	mux.Handle("GET /api/health", requestLogger(s.log, http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", requestLogger(s.log, http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// route wraps a protected API handler with the standard middleware chain:
// request logging, HTTP metrics, per-IP rate limiting, then Bearer auth.
func (s *Server) route(name string, h http.Handler, rl *rateLimiter) http.Handler {
	h = authMiddleware(s.cfg.APIKey, h)
	h = rl.middleware(h)
	h = s.instrument(name, h)
	return requestLogger(s.log, h)
}

// instrument records request count and latency for the named handler.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(
			r.Method, name, fmt.Sprintf("%d", rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(elapsed.Seconds())
	})
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat requests. It streams the assistant's
// response using Server-Sent Events (SSE) so clients can render tokens as
// they arrive. Whole-query responses are served from the result cache when
// present; cache hits and misses produce byte-identical streams.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sw := &sseWriter{w: w, flusher: flusher}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	start := time.Now()
	outcome := "ok"
	defer func() {
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	s.cache.RecordQuery(req.Message)

	if cached, ok := s.cache.CachedResponse(req.Message); ok {
		_, _ = sw.Write([]byte(cached))
		fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
		flusher.Flush()
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	response, err := s.chat.SendStream(ctx, req.Message, func(token string) error {
		_, werr := sw.Write([]byte(token))
		return werr
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		} else {
			outcome = "error"
		}
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}

	s.cache.CacheResponse(req.Message, response)

	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleHistory handles GET /api/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns := s.chat.History()
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, r, historyResponse{
		SessionID: s.chat.ID().String(),
		Turns:     turns,
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.chat.ConversationStats())
}

// handleSessionClear handles POST /api/session/clear. It discards the
// conversation history and returns the fresh session ID.
func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	s.chat.ClearHistory(r.Context())
	writeJSON(w, r, sessionClearResponse{SessionID: s.chat.ID().String()})
}

// handleSuggestions handles GET /api/suggestions?q=<prefix>.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	matches := s.cache.Suggestions(r.URL.Query().Get("q"))
	if matches == nil {
		matches = []string{}
	}
	writeJSON(w, r, suggestionsResponse{Suggestions: matches})
}

// handleCacheStats handles GET /api/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st := s.cache.Stats()
	writeJSON(w, r, cacheStatsResponse{
		Responses: st.Responses,
		Contexts:  st.Contexts,
		ToolCalls: st.ToolCalls,
		Recent:    st.Recent,
	})
}

// handleCacheClear handles POST /api/cache/clear. The section query
// parameter narrows the clear to one cache section; absent or "all" empties
// everything.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	switch section := r.URL.Query().Get("section"); section {
	case "", "all":
		s.cache.Clear()
	case "responses":
		s.cache.ClearResponses()
	case "contexts":
		s.cache.ClearContexts()
	case "toolcalls":
		s.cache.ClearToolCalls()
	default:
		http.Error(w, fmt.Sprintf("unknown cache section %q", section), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
