package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pfai-go/internal/checkpoint"
)

// LLMPinger probes an LLM backend by sending a minimal single-token generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.ToolCallingChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a single-token generate request to the backend.
// Returns nil if the backend produced a response, or a descriptive error.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// StorePinger probes the checkpoint store with a cheap read.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the checkpoint store to probe.
	store *checkpoint.SQLiteStore
}

// NewStorePinger constructs a StorePinger for the given checkpoint store.
func NewStorePinger(store *checkpoint.SQLiteStore) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "checkpoints" }

// Ping issues a read for a key that never exists. A missing key is not an
// error from the store, so any error here means the database is unreachable.
func (p *StorePinger) Ping(ctx context.Context) error {
	if _, err := p.store.Get(ctx, "__ping__"); err != nil {
		return fmt.Errorf("checkpoint read failed: %w", err)
	}
	return nil
}
