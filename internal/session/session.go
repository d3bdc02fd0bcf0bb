// Package session implements the chat-session state machine: it owns one
// backend conversation handle, retries transient failures, recreates the
// handle when the model's context is exhausted (carrying forward a short
// continuity summary), and periodically checkpoints its state.
//
// A Manager is owned by a single logical caller; its methods serialize
// internally so the server can share one instance per session. Multiple
// independent Managers may run concurrently; their only shared dependencies
// are the result cache and the data providers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/pfai-go/internal/budget"
	"github.com/54b3r/pfai-go/internal/checkpoint"
	"github.com/54b3r/pfai-go/internal/logging"
)

// Error kinds surfaced by the Manager.
var (
	// ErrContextLimitExceeded classifies a backend failure as caused by
	// exceeding the model's input-context capacity. It is recovered
	// internally via recreation and only visible if recreation itself fails.
	ErrContextLimitExceeded = errors.New("context limit exceeded - creating new session")

	// ErrSessionCreationFailed means a backend handle could not be opened.
	ErrSessionCreationFailed = errors.New("failed to create new session")

	// ErrMaxAttemptsReached means every retry attempt for a send failed.
	// The last underlying error is attached via errors.Join.
	ErrMaxAttemptsReached = errors.New("maximum session attempts reached")

	// ErrInvalidResponse means the backend returned an empty payload.
	// Treated as a retryable failure.
	ErrInvalidResponse = errors.New("invalid response from language model")
)

// Defaults for Config fields left zero.
const (
	DefaultMaxSessionAttempts = 3
	DefaultMaxHistoryLength   = 10
	DefaultKeepEarlyTurns     = 2
	DefaultCheckpointInterval = 30 * time.Second
	DefaultRetryDelay         = time.Second

	// criticalContextTokens is the estimated context size above which an
	// asynchronous session recreation is triggered.
	criticalContextTokens = 12000

	// Continuity summary truncation bounds per turn.
	continuityQueryLimit    = 100
	continuityResponseLimit = 200

	// continuityTurns is how many recent turns feed the continuity summary.
	continuityTurns = 3
)

// Config holds the dependencies and tuning for a Manager.
type Config struct {
	// Factory opens backend handles. Required.
	Factory Factory

	// Instructions is the system instructions string bound into every
	// handle; its estimate seeds the session's context-size tracking.
	Instructions string

	// Checkpoints is the optional snapshot store. Nil disables
	// checkpointing. All checkpoint I/O is best-effort.
	Checkpoints checkpoint.Store

	// MaxSessionAttempts caps retries per send and initialization attempts.
	MaxSessionAttempts int

	// MaxHistoryLength bounds the retained turn history.
	MaxHistoryLength int

	// KeepEarlyTurns is how many of the earliest turns the history trim
	// anchors (the remainder of the budget goes to the most recent turns).
	KeepEarlyTurns int

	// CheckpointInterval is the minimum gap between checkpoints.
	CheckpointInterval time.Duration

	// RetryDelay is the backoff between generic retry attempts.
	RetryDelay time.Duration
}

// Manager is the chat-session state machine.
type Manager struct {
	mu sync.Mutex

	factory      Factory
	instructions string
	checkpoints  checkpoint.Store

	maxAttempts        int
	maxHistoryLength   int
	keepEarlyTurns     int
	checkpointInterval time.Duration
	retryDelay         time.Duration

	backend          Backend
	firstInteraction bool

	sessionID            uuid.UUID
	history              []Turn
	sessionAttempts      int
	totalTokensUsed      int
	estimatedContextSize int
	lastCheckpoint       time.Time

	// recreate is the single-slot queue feeding the recreation consumer;
	// requests issued while one is pending coalesce.
	recreate chan struct{}
	closed   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Manager and opens its first backend handle. A failed
// first initialization is not fatal: the handle is opened lazily on the
// first send.
func New(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg.Factory == nil {
		return nil, errors.New("session: Factory must not be nil")
	}

	m := &Manager{
		factory:            cfg.Factory,
		instructions:       cfg.Instructions,
		checkpoints:        cfg.Checkpoints,
		maxAttempts:        orDefault(cfg.MaxSessionAttempts, DefaultMaxSessionAttempts),
		maxHistoryLength:   orDefault(cfg.MaxHistoryLength, DefaultMaxHistoryLength),
		keepEarlyTurns:     orDefault(cfg.KeepEarlyTurns, DefaultKeepEarlyTurns),
		checkpointInterval: orDefaultDuration(cfg.CheckpointInterval, DefaultCheckpointInterval),
		retryDelay:         orDefaultDuration(cfg.RetryDelay, DefaultRetryDelay),
		firstInteraction:   true,
		sessionID:          uuid.New(),
		lastCheckpoint:     time.Now(),
		recreate:           make(chan struct{}, 1),
		closed:             make(chan struct{}),
	}

	m.mu.Lock()
	if err := m.initializeSession(ctx); err != nil {
		logging.FromContext(ctx).Warn("session: initial handle creation failed, will retry on first send",
			slog.Any("error", err))
	}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.recreationLoop()

	return m, nil
}

// Close stops the background recreation consumer. It does not close the
// checkpoint store, which the composition root owns.
func (m *Manager) Close() {
	close(m.closed)
	m.wg.Wait()
}

// ID returns the current session identifier. Recreation assigns a new one.
func (m *Manager) ID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Send sends a query to the backend, retrying up to the attempt cap.
// Context-limit failures recreate the handle and retry transparently;
// generic failures back off and retry; cancellation returns immediately
// without recording a turn. On success the turn is recorded in history and
// a checkpoint may be written.
func (m *Manager) Send(ctx context.Context, query string) (string, error) {
	return m.send(ctx, query, nil)
}

// SendStream behaves like Send but streams response tokens to onToken when
// the backend supports streaming.
func (m *Manager) SendStream(ctx context.Context, query string, onToken func(token string) error) (string, error) {
	return m.send(ctx, query, onToken)
}

func (m *Manager) send(ctx context.Context, query string, onToken func(string) error) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		response, err := m.attemptSend(ctx, query, onToken)
		if err == nil {
			m.recordTurn(ctx, query, response)
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if IsContextLimitError(err) {
			log.Info("session: context limit hit, recreating session",
				slog.Int("attempt", attempt), slog.String("session_id", m.sessionID.String()))
			if rerr := m.recreateWithContinuity(ctx); rerr != nil {
				lastErr = rerr
			}
			continue
		}

		if attempt < m.maxAttempts {
			log.Warn("session: send attempt failed, retrying",
				slog.Int("attempt", attempt), slog.Any("error", err))
			select {
			case <-time.After(m.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", errors.Join(ErrMaxAttemptsReached, lastErr)
}

// attemptSend performs one backend invocation, initializing the handle first
// if needed. Caller holds m.mu.
func (m *Manager) attemptSend(ctx context.Context, query string, onToken func(string) error) (string, error) {
	if m.backend == nil {
		if err := m.initializeSession(ctx); err != nil {
			return "", err
		}
	}
	if m.firstInteraction {
		m.firstInteraction = false
	}

	var (
		response string
		err      error
	)
	if sb, ok := m.backend.(StreamingBackend); ok && onToken != nil {
		response, err = sb.Ask(ctx, query, onToken)
	} else {
		response, err = m.backend.Respond(ctx, query)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(response) == "" {
		return "", ErrInvalidResponse
	}
	return response, nil
}

// recordTurn appends the completed turn, updates token accounting, trims
// history, checks context health, and checkpoints if due. Caller holds m.mu.
func (m *Manager) recordTurn(ctx context.Context, query, response string) {
	estimate := budget.Estimate(query + response)
	m.history = append(m.history, Turn{
		TurnID:        uuid.New(),
		Query:         query,
		Response:      response,
		Timestamp:     time.Now(),
		TokenEstimate: estimate,
	})
	m.totalTokensUsed += estimate
	m.trimHistory()
	m.checkContextHealth(ctx)
	m.checkpointIfDue(ctx)
}

// trimHistory enforces the anchor+recency retention: when the history
// exceeds its bound, the earliest keepEarlyTurns and the most recent
// remainder are kept and the middle is dropped. Caller holds m.mu.
func (m *Manager) trimHistory() {
	if len(m.history) <= m.maxHistoryLength {
		return
	}
	keepEarly := m.keepEarlyTurns
	keepRecent := m.maxHistoryLength - keepEarly

	trimmed := make([]Turn, 0, m.maxHistoryLength)
	trimmed = append(trimmed, m.history[:keepEarly]...)
	trimmed = append(trimmed, m.history[len(m.history)-keepRecent:]...)
	m.history = trimmed
}

// checkContextHealth enqueues an asynchronous recreation when the estimated
// context consumption crosses the critical threshold. The enqueue never
// blocks: a pending request coalesces new ones. Caller holds m.mu.
func (m *Manager) checkContextHealth(ctx context.Context) {
	if m.estimatedContextSize+m.totalTokensUsed <= criticalContextTokens {
		return
	}
	select {
	case m.recreate <- struct{}{}:
		logging.FromContext(ctx).Info("session: context critical, queued background recreation",
			slog.Int("estimated_tokens", m.estimatedContextSize+m.totalTokensUsed))
	default:
	}
}

// recreationLoop is the single consumer of recreation requests, guaranteeing
// at most one recreation in flight per session.
func (m *Manager) recreationLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.closed:
			return
		case <-m.recreate:
			ctx := context.Background()
			m.mu.Lock()
			if err := m.recreateWithContinuity(ctx); err != nil {
				logging.FromContext(ctx).Warn("session: background recreation failed", slog.Any("error", err))
			}
			m.mu.Unlock()
		}
	}
}

// initializeSession opens a new backend handle. Each call consumes one
// session attempt; exceeding the cap performs a soft reset (history cleared,
// counter reset to 1) surfaced as a failure of the current attempt so the
// caller's retry loop re-enters initialization cleanly. Caller holds m.mu.
func (m *Manager) initializeSession(ctx context.Context) error {
	m.sessionAttempts++
	if m.sessionAttempts > m.maxAttempts {
		m.history = nil
		m.sessionAttempts = 1
		return fmt.Errorf("session: attempt budget exhausted, history cleared: %w", ErrSessionCreationFailed)
	}

	backend, err := m.factory(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionCreationFailed, err)
	}
	m.backend = backend
	m.estimatedContextSize = budget.Estimate(m.instructions)
	return nil
}

// recreateWithContinuity discards the current handle and opens a fresh one,
// replaying a short summary of recent turns so conversational context is not
// fully lost. The old checkpoint key is invalidated. Caller holds m.mu.
func (m *Manager) recreateWithContinuity(ctx context.Context) error {
	summary := m.continuitySummary()

	m.backend = nil
	m.firstInteraction = true

	oldKey := checkpointKey(m.sessionID)
	m.sessionID = uuid.New()
	if m.checkpoints != nil {
		// Best-effort: the superseded snapshot must not be restorable.
		if err := m.checkpoints.Remove(ctx, oldKey); err != nil {
			logging.FromContext(ctx).Debug("session: stale checkpoint removal failed", slog.Any("error", err))
		}
	}

	if err := m.initializeSession(ctx); err != nil {
		return err
	}

	if summary != "" {
		// Replay as a synthetic opening exchange. Failure here is not fatal:
		// the new handle works, it just lacks continuity.
		if _, err := m.backend.Respond(ctx, "Context from previous session: "+summary); err != nil {
			logging.FromContext(ctx).Warn("session: continuity replay failed", slog.Any("error", err))
		}
	}
	return nil
}

// continuitySummary digests the most recent turns, truncating each query and
// response, for replay into a recreated session. Caller holds m.mu.
func (m *Manager) continuitySummary() string {
	if len(m.history) == 0 {
		return ""
	}

	recent := m.history
	if len(recent) > continuityTurns {
		recent = recent[len(recent)-continuityTurns:]
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation context:\n")
	for _, turn := range recent {
		fmt.Fprintf(&sb, "User: %s\n", prefix(turn.Query, continuityQueryLimit))
		fmt.Fprintf(&sb, "Assistant: %s\n", prefix(turn.Response, continuityResponseLimit))
	}
	return sb.String()
}

// checkpointIfDue persists a snapshot when the interval has elapsed and
// there is history worth saving. Persistence is fire-and-forget and must not
// block the send path. Caller holds m.mu.
func (m *Manager) checkpointIfDue(ctx context.Context) {
	if m.checkpoints == nil || len(m.history) == 0 {
		return
	}
	now := time.Now()
	if now.Sub(m.lastCheckpoint) <= m.checkpointInterval {
		return
	}
	m.lastCheckpoint = now

	state := m.snapshotLocked()
	log := logging.FromContext(ctx)
	go func() {
		blob, err := json.Marshal(state)
		if err != nil {
			log.Debug("session: checkpoint encode failed", slog.Any("error", err))
			return
		}
		if err := m.checkpoints.Set(context.Background(), checkpointKey(state.SessionID), blob); err != nil {
			log.Debug("session: checkpoint write failed", slog.Any("error", err))
		}
	}()
}

// Snapshot returns a serializable copy of the session state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	history := make([]Turn, len(m.history))
	copy(history, m.history)
	return State{
		SessionID:            m.sessionID,
		History:              history,
		TotalTokensUsed:      m.totalTokensUsed,
		EstimatedContextSize: m.estimatedContextSize,
		SessionAttempts:      m.sessionAttempts,
		LastUpdated:          time.Now(),
	}
}

// Restore loads the checkpointed snapshot for id and adopts it, opening a
// fresh backend handle. Returns false when no snapshot exists.
func (m *Manager) Restore(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.checkpoints == nil {
		return false, nil
	}
	blob, err := m.checkpoints.Get(ctx, checkpointKey(id))
	if err != nil || blob == nil {
		return false, err
	}

	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		return false, fmt.Errorf("session: decode checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = state.SessionID
	m.history = state.History
	m.totalTokensUsed = state.TotalTokensUsed
	m.estimatedContextSize = state.EstimatedContextSize
	m.sessionAttempts = state.SessionAttempts
	m.backend = nil
	m.firstInteraction = true
	if err := m.initializeSession(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// History returns a copy of the retained turn history.
func (m *Manager) History() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.history))
	copy(out, m.history)
	return out
}

// ClearHistory drops the turn history and token accounting, removes the
// session's checkpoint, and assigns a fresh session ID.
func (m *Manager) ClearHistory(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldKey := checkpointKey(m.sessionID)
	m.history = nil
	m.totalTokensUsed = 0
	m.sessionAttempts = 0
	m.sessionID = uuid.New()
	if m.checkpoints != nil {
		if err := m.checkpoints.Remove(ctx, oldKey); err != nil {
			logging.FromContext(ctx).Debug("session: checkpoint removal failed", slog.Any("error", err))
		}
	}
}

// ConversationStats summarizes the session so far.
func (m *Manager) ConversationStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalTurns:         len(m.history),
		TotalTokens:        m.totalTokensUsed,
		ContextUtilization: float64(m.estimatedContextSize+m.totalTokensUsed) / float64(criticalContextTokens),
	}
	if len(m.history) > 0 {
		stats.AverageTokensPerTurn = m.totalTokensUsed / len(m.history)
		stats.Duration = time.Since(m.history[0].Timestamp)
	}
	return stats
}

// IsContextLimitError reports whether err's text looks like a model
// context-capacity failure: it mentions "context" together with one of
// "limit", "length", or "token", case-insensitively.
func IsContextLimitError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "context") &&
		(strings.Contains(text, "limit") || strings.Contains(text, "length") || strings.Contains(text, "token"))
}

// prefix returns the first n bytes of s, or s itself when shorter.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
