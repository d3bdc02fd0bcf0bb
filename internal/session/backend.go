package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"

	"github.com/54b3r/pfai-go/internal/budget"
	"github.com/54b3r/pfai-go/internal/conversation"
	"github.com/54b3r/pfai-go/internal/logging"
)

// Backend is one live backend conversation handle. A handle accumulates
// conversation state internally; the Manager discards and recreates handles
// when the model's context is exhausted.
type Backend interface {
	// Respond sends a query within the handle's conversation and returns the
	// assistant text. Errors whose text looks like a context-capacity
	// failure are classified by the Manager as context-limit errors.
	Respond(ctx context.Context, query string) (string, error)
}

// StreamingBackend is a Backend that can additionally stream response tokens
// as they are generated. The stream is lazy and not restartable; cancelling
// ctx stops consumption.
type StreamingBackend interface {
	Backend
	// Ask streams the response for query, invoking onToken for each content
	// fragment, and returns the full accumulated response text.
	Ask(ctx context.Context, query string, onToken func(token string) error) (string, error)
}

// Factory opens a new backend conversation handle. The Manager calls it at
// initialization and again on every recreation; implementations bind tools
// to the same data providers each time.
type Factory func(ctx context.Context) (Backend, error)

// EinoConfig holds the dependencies for constructing an EinoBackend.
type EinoConfig struct {
	// ChatModel is the LLM constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Tools is the list of portfolio data tools available to the agent.
	Tools []tool.BaseTool

	// Instructions is the system prompt opening every conversation.
	Instructions string

	// MaxContextTokens is the conversation buffer's compaction budget.
	// Defaults to conversation.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// EinoBackend is a Backend over an Eino ReAct agent. It owns the
// conversation buffer for its handle lifetime: queries and responses are
// appended to the buffer and the buffer is compacted immediately before
// every model invocation.
type EinoBackend struct {
	agent *react.Agent
	buf   *conversation.Buffer
}

// NewEinoBackend constructs an EinoBackend, seeding its conversation buffer
// with the system instructions.
func NewEinoBackend(ctx context.Context, cfg *EinoConfig) (*EinoBackend, error) {
	if cfg.ChatModel == nil {
		return nil, errors.New("session: ChatModel must not be nil")
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cfg.ChatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: cfg.Tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session: failed to create ReAct agent: %w", err)
	}

	buf := conversation.NewBuffer(cfg.MaxContextTokens)
	if cfg.Instructions != "" {
		buf.AddSystem(cfg.Instructions)
	}

	return &EinoBackend{agent: reactAgent, buf: buf}, nil
}

// Buffer returns the backend's conversation buffer. Tool bindings use it to
// record oversized tool output safely.
func (b *EinoBackend) Buffer() *conversation.Buffer {
	return b.buf
}

// Respond appends the query, compacts the buffer, and generates a response.
// A failed or cancelled generation rolls the buffer back so no partial turn
// remains appended.
func (b *EinoBackend) Respond(ctx context.Context, query string) (string, error) {
	snapshot := b.buf.Messages()
	b.buf.AddUser(query)

	msgs := b.buf.PrepareForLLM()
	logging.FromContext(ctx).Debug("session: generating",
		slog.Int("messages", len(msgs)),
		slog.Int("estimated_tokens", budget.EstimateMessages(msgs)),
	)

	out, err := b.agent.Generate(ctx, msgs)
	if err != nil {
		b.buf.Restore(snapshot)
		return "", fmt.Errorf("session: generate failed: %w", err)
	}

	b.buf.AddAssistant(out.Content)
	return out.Content, nil
}

// Ask streams the response token by token. The accumulated response is
// appended to the buffer only after the stream completes; cancellation or a
// stream error rolls the buffer back.
func (b *EinoBackend) Ask(ctx context.Context, query string, onToken func(token string) error) (string, error) {
	snapshot := b.buf.Messages()
	b.buf.AddUser(query)

	sr, err := b.agent.Stream(ctx, b.buf.PrepareForLLM())
	if err != nil {
		b.buf.Restore(snapshot)
		return "", fmt.Errorf("session: stream failed: %w", err)
	}
	defer sr.Close()

	var sb strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			b.buf.Restore(snapshot)
			return "", fmt.Errorf("session: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		sb.WriteString(msg.Content)
		if onToken != nil {
			if err := onToken(msg.Content); err != nil {
				b.buf.Restore(snapshot)
				return "", fmt.Errorf("session: token sink error: %w", err)
			}
		}
	}

	response := sb.String()
	b.buf.AddAssistant(response)
	return response, nil
}
