package session

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one completed query/response exchange. Immutable once created.
type Turn struct {
	// TurnID uniquely identifies the turn.
	TurnID uuid.UUID `json:"turnId"`
	// Query is the user query that opened the turn.
	Query string `json:"query"`
	// Response is the assistant response that closed it.
	Response string `json:"response"`
	// Timestamp is when the turn completed.
	Timestamp time.Time `json:"timestamp"`
	// TokenEstimate is the estimated token cost of query + response.
	TokenEstimate int `json:"tokenEstimate"`
}

// State is a serializable snapshot of a Manager, used for checkpoint and
// restore. A snapshot is superseded, never mutated: recreation assigns a
// fresh session ID and invalidates the old checkpoint key.
type State struct {
	// SessionID identifies the session the snapshot belongs to.
	SessionID uuid.UUID `json:"sessionId"`
	// History is the retained conversation turn history.
	History []Turn `json:"conversationHistory"`
	// TotalTokensUsed is the accumulated token estimate across turns.
	TotalTokensUsed int `json:"totalTokensUsed"`
	// EstimatedContextSize is the estimated token cost of the system
	// instructions bound at initialization.
	EstimatedContextSize int `json:"estimatedContextSize"`
	// SessionAttempts is the initialization attempt counter.
	SessionAttempts int `json:"sessionAttempts"`
	// LastUpdated is when the snapshot was taken.
	LastUpdated time.Time `json:"lastUpdated"`
}

// Stats summarizes a session's conversation so far.
type Stats struct {
	// TotalTurns is the number of retained turns.
	TotalTurns int
	// TotalTokens is the accumulated token estimate.
	TotalTokens int
	// AverageTokensPerTurn is TotalTokens / TotalTurns (0 when empty).
	AverageTokensPerTurn int
	// Duration is the elapsed time since the earliest retained turn.
	Duration time.Duration
	// ContextUtilization is (estimated context + used tokens) relative to
	// the critical recreation threshold.
	ContextUtilization float64
}

// checkpointKey returns the checkpoint store key for a session ID.
func checkpointKey(id uuid.UUID) string {
	return "session_" + id.String()
}
