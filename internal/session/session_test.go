package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/pfai-go/internal/checkpoint"
)

// fakeBackend scripts Respond behavior and records the queries it receives.
type fakeBackend struct {
	mu      sync.Mutex
	queries []string
	respond func(call int, query string) (string, error)
	calls   int
}

func (f *fakeBackend) Respond(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	return f.respond(f.calls, query)
}

func (f *fakeBackend) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

func newTestManager(t *testing.T, cfg *Config) *Manager {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	m, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func openTestCheckpoints(t *testing.T) *checkpoint.SQLiteStore {
	t.Helper()
	store, err := checkpoint.Open(":memory:")
	if err != nil {
		t.Fatalf("checkpoint.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func Test_Send_RecordsTurn(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{respond: func(int, string) (string, error) {
		return "the portfolio is up 4% this year", nil
	}}
	m := newTestManager(t, &Config{
		Factory: func(context.Context) (Backend, error) { return backend, nil },
	})

	got, err := m.Send(context.Background(), "how is the portfolio doing?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != "the portfolio is up 4% this year" {
		t.Errorf("Send() = %q", got)
	}

	history := m.History()
	if len(history) != 1 {
		t.Fatalf("len(History()) = %d, want 1", len(history))
	}
	turn := history[0]
	if turn.Query != "how is the portfolio doing?" {
		t.Errorf("turn.Query = %q", turn.Query)
	}
	wantTokens := len("how is the portfolio doing?"+got) / 4
	if turn.TokenEstimate != wantTokens {
		t.Errorf("turn.TokenEstimate = %d, want %d", turn.TokenEstimate, wantTokens)
	}
	if turn.TurnID == uuid.Nil {
		t.Error("turn.TurnID is the zero UUID")
	}
}

func Test_Send_EmptyResponseRetriesThenFails(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{respond: func(int, string) (string, error) {
		return "   ", nil
	}}
	m := newTestManager(t, &Config{
		Factory: func(context.Context) (Backend, error) { return backend, nil },
	})

	_, err := m.Send(context.Background(), "anything")
	if !errors.Is(err, ErrMaxAttemptsReached) {
		t.Fatalf("Send() error = %v, want ErrMaxAttemptsReached", err)
	}
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Send() error = %v, want to wrap ErrInvalidResponse", err)
	}
	if backend.calls != DefaultMaxSessionAttempts {
		t.Errorf("backend calls = %d, want %d", backend.calls, DefaultMaxSessionAttempts)
	}
	if len(m.History()) != 0 {
		t.Errorf("failed send recorded %d turns", len(m.History()))
	}
}

func Test_Send_TransientFailureRecovers(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{respond: func(call int, _ string) (string, error) {
		if call == 1 {
			return "", errors.New("upstream timeout")
		}
		return "recovered", nil
	}}
	m := newTestManager(t, &Config{
		Factory: func(context.Context) (Backend, error) { return backend, nil },
	})

	got, err := m.Send(context.Background(), "q")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != "recovered" {
		t.Errorf("Send() = %q, want %q", got, "recovered")
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
}

func Test_Send_ContextLimitRecreatesSession(t *testing.T) {
	t.Parallel()

	var factoryCalls int
	var backends []*fakeBackend
	factory := func(context.Context) (Backend, error) {
		factoryCalls++
		call := factoryCalls
		b := &fakeBackend{respond: func(int, string) (string, error) {
			if call == 1 {
				return "", errors.New("request exceeds the model's context length")
			}
			return "answered after recreation", nil
		}}
		backends = append(backends, b)
		return b, nil
	}
	m := newTestManager(t, &Config{Factory: factory})

	before := m.ID()
	got, err := m.Send(context.Background(), "long follow-up")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != "answered after recreation" {
		t.Errorf("Send() = %q", got)
	}
	if factoryCalls != 2 {
		t.Errorf("factory calls = %d, want 2", factoryCalls)
	}
	if m.ID() == before {
		t.Error("session ID unchanged after context-limit recreation")
	}
}

func Test_Send_ContextLimitExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var factoryCalls int
	factory := func(context.Context) (Backend, error) {
		factoryCalls++
		return &fakeBackend{respond: func(int, string) (string, error) {
			return "", errors.New("context window token limit reached")
		}}, nil
	}
	m := newTestManager(t, &Config{Factory: factory})

	_, err := m.Send(context.Background(), "q")
	if !errors.Is(err, ErrMaxAttemptsReached) {
		t.Fatalf("Send() error = %v, want ErrMaxAttemptsReached", err)
	}
	// One handle at construction plus one per in-budget recreation.
	if factoryCalls != DefaultMaxSessionAttempts {
		t.Errorf("factory calls = %d, want %d", factoryCalls, DefaultMaxSessionAttempts)
	}
}

func Test_Send_ReplaysContinuityAfterRecreation(t *testing.T) {
	t.Parallel()

	longQuery := strings.Repeat("q", 150)
	longResponse := strings.Repeat("r", 250)

	var factoryCalls int
	var second *fakeBackend
	factory := func(context.Context) (Backend, error) {
		factoryCalls++
		if factoryCalls == 1 {
			return &fakeBackend{respond: func(call int, _ string) (string, error) {
				if call == 1 {
					return longResponse, nil
				}
				return "", errors.New("maximum context length exceeded")
			}}, nil
		}
		second = &fakeBackend{respond: func(int, string) (string, error) {
			return "ok", nil
		}}
		return second, nil
	}
	m := newTestManager(t, &Config{Factory: factory})

	if _, err := m.Send(context.Background(), longQuery); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if _, err := m.Send(context.Background(), "next question"); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}

	queries := second.received()
	if len(queries) != 2 {
		t.Fatalf("recreated backend received %d queries, want 2", len(queries))
	}
	replay := queries[0]
	if !strings.HasPrefix(replay, "Context from previous session: ") {
		t.Errorf("replay prefix missing: %q", replay)
	}
	if !strings.Contains(replay, longQuery[:100]) || strings.Contains(replay, longQuery[:101]) {
		t.Errorf("replay query not truncated to 100 chars: %q", replay)
	}
	if !strings.Contains(replay, longResponse[:200]) || strings.Contains(replay, longResponse[:201]) {
		t.Errorf("replay response not truncated to 200 chars: %q", replay)
	}
	if queries[1] != "next question" {
		t.Errorf("queries[1] = %q", queries[1])
	}
}

func Test_Send_CancellationLeavesHistoryUntouched(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{respond: func(int, string) (string, error) {
		return "", errors.New("stream aborted")
	}}
	m := newTestManager(t, &Config{
		Factory: func(context.Context) (Backend, error) { return backend, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Send(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
	if len(m.History()) != 0 {
		t.Errorf("cancelled send recorded %d turns", len(m.History()))
	}
}

func Test_HistoryTrim_KeepsAnchorsAndRecent(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{respond: func(call int, _ string) (string, error) {
		return fmt.Sprintf("response %d", call), nil
	}}
	m := newTestManager(t, &Config{
		Factory: func(context.Context) (Backend, error) { return backend, nil },
	})

	for i := 1; i <= 14; i++ {
		if _, err := m.Send(context.Background(), fmt.Sprintf("query %d", i)); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	history := m.History()
	if len(history) != DefaultMaxHistoryLength {
		t.Fatalf("len(History()) = %d, want %d", len(history), DefaultMaxHistoryLength)
	}
	wantQueries := []string{
		"query 1", "query 2",
		"query 7", "query 8", "query 9", "query 10",
		"query 11", "query 12", "query 13", "query 14",
	}
	for i, want := range wantQueries {
		if history[i].Query != want {
			t.Errorf("history[%d].Query = %q, want %q", i, history[i].Query, want)
		}
	}
}

func Test_Checkpoint_WrittenAfterInterval(t *testing.T) {
	t.Parallel()

	store := openTestCheckpoints(t)
	backend := &fakeBackend{respond: func(int, string) (string, error) {
		return "saved", nil
	}}
	m := newTestManager(t, &Config{
		Factory:            func(context.Context) (Backend, error) { return backend, nil },
		Checkpoints:        store,
		CheckpointInterval: time.Nanosecond,
	})

	if _, err := m.Send(context.Background(), "persist me"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	key := checkpointKey(m.ID())
	deadline := time.Now().Add(2 * time.Second)
	var blob []byte
	for time.Now().Before(deadline) {
		var err error
		blob, err = store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if blob != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if blob == nil {
		t.Fatal("no checkpoint written")
	}

	var state State
	if err := json.Unmarshal(blob, &state); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if state.SessionID != m.ID() {
		t.Errorf("state.SessionID = %v, want %v", state.SessionID, m.ID())
	}
	if len(state.History) != 1 || state.History[0].Query != "persist me" {
		t.Errorf("state.History = %+v", state.History)
	}
}

func Test_Restore_AdoptsSnapshot(t *testing.T) {
	t.Parallel()

	store := openTestCheckpoints(t)
	id := uuid.New()
	state := State{
		SessionID: id,
		History: []Turn{
			{TurnID: uuid.New(), Query: "old query", Response: "old response", Timestamp: time.Now(), TokenEstimate: 5},
		},
		TotalTokensUsed: 5,
		LastUpdated:     time.Now(),
	}
	blob, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := store.Set(context.Background(), checkpointKey(id), blob); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	backend := &fakeBackend{respond: func(int, string) (string, error) { return "ok", nil }}
	m := newTestManager(t, &Config{
		Factory:     func(context.Context) (Backend, error) { return backend, nil },
		Checkpoints: store,
	})

	ok, err := m.Restore(context.Background(), id)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !ok {
		t.Fatal("Restore() = false, want true")
	}
	if m.ID() != id {
		t.Errorf("ID() = %v, want %v", m.ID(), id)
	}
	history := m.History()
	if len(history) != 1 || history[0].Query != "old query" {
		t.Errorf("History() = %+v", history)
	}

	ok, err = m.Restore(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Restore(missing) error = %v", err)
	}
	if ok {
		t.Error("Restore(missing) = true, want false")
	}
}

func Test_ClearHistory_ResetsStateAndRemovesCheckpoint(t *testing.T) {
	t.Parallel()

	store := openTestCheckpoints(t)
	backend := &fakeBackend{respond: func(int, string) (string, error) { return "ok", nil }}
	m := newTestManager(t, &Config{
		Factory:     func(context.Context) (Backend, error) { return backend, nil },
		Checkpoints: store,
	})

	if _, err := m.Send(context.Background(), "q"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	before := m.ID()
	if err := store.Set(context.Background(), checkpointKey(before), []byte(`{}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	m.ClearHistory(context.Background())

	if len(m.History()) != 0 {
		t.Errorf("History() not empty after clear")
	}
	if m.ID() == before {
		t.Error("session ID unchanged after clear")
	}
	blob, err := store.Get(context.Background(), checkpointKey(before))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if blob != nil {
		t.Error("old checkpoint still present after clear")
	}
}

func Test_ConversationStats(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{respond: func(int, string) (string, error) {
		return strings.Repeat("x", 40), nil
	}}
	m := newTestManager(t, &Config{
		Factory: func(context.Context) (Backend, error) { return backend, nil },
	})

	for i := 0; i < 3; i++ {
		if _, err := m.Send(context.Background(), strings.Repeat("y", 40)); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	stats := m.ConversationStats()
	if stats.TotalTurns != 3 {
		t.Errorf("TotalTurns = %d, want 3", stats.TotalTurns)
	}
	if stats.TotalTokens != 60 {
		t.Errorf("TotalTokens = %d, want 60", stats.TotalTokens)
	}
	if stats.AverageTokensPerTurn != 20 {
		t.Errorf("AverageTokensPerTurn = %d, want 20", stats.AverageTokensPerTurn)
	}
	if stats.Duration < 0 {
		t.Errorf("Duration = %v", stats.Duration)
	}
}

func Test_IsContextLimitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context plus limit", errors.New("Context LIMIT exceeded"), true},
		{"context plus length", errors.New("maximum context length is 8192"), true},
		{"context plus token", errors.New("context token budget exhausted"), true},
		{"context alone", errors.New("context deadline exceeded"), false},
		{"limit alone", errors.New("rate limit exceeded"), false},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsContextLimitError(tt.err); got != tt.want {
				t.Errorf("IsContextLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
