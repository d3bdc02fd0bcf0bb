package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pfai-go/internal/cache"
	"github.com/54b3r/pfai-go/internal/session"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat request end to end.
	// Defaults to 5 minutes if zero.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metric registrations.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// chatter is the interface the handlers call to converse with the assistant.
// *session.Manager satisfies it; tests inject a fake.
type chatter interface {
	// Send runs one conversational turn and returns the full response.
	Send(ctx context.Context, query string) (string, error)
	// SendStream runs one turn, delivering tokens to onToken as they arrive.
	SendStream(ctx context.Context, query string, onToken func(token string) error) (string, error)
	// History returns the retained conversation turns.
	History() []session.Turn
	// ConversationStats summarizes the current session.
	ConversationStats() session.Stats
	// ClearHistory discards all conversation state and starts a new session.
	ClearHistory(ctx context.Context)
	// ID returns the current session identifier.
	ID() uuid.UUID
}

// Server is the HTTP server that exposes the conversation manager and the
// shared result cache.
type Server struct {
	// chat is the conversation manager behind /api/chat and the session routes.
	chat chatter
	// cache is the shared result cache behind the /api/cache routes and the
	// whole-query response fast path in handleChat.
	cache *cache.Cache
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's natural language query.
	Message string `json:"message"`
}

// historyResponse is the JSON body for GET /api/history.
type historyResponse struct {
	// SessionID is the current session identifier.
	SessionID string `json:"sessionId"`
	// Turns is the retained conversation history, oldest first.
	Turns []session.Turn `json:"turns"`
}

// cacheStatsResponse is the JSON body for GET /api/cache/stats.
type cacheStatsResponse struct {
	Responses int `json:"responses"`
	Contexts  int `json:"contexts"`
	ToolCalls int `json:"toolCalls"`
	Recent    int `json:"recentQueries"`
}

// suggestionsResponse is the JSON body for GET /api/suggestions.
type suggestionsResponse struct {
	// Suggestions is the list of recent queries matching the prefix.
	Suggestions []string `json:"suggestions"`
}

// sessionClearResponse is the JSON body for POST /api/session/clear.
type sessionClearResponse struct {
	// SessionID is the identifier of the fresh session.
	SessionID string `json:"sessionId"`
}
