// Package conversation maintains the ordered message log for one chat
// session and compacts it to a token budget before each model invocation.
// Compaction is deferred: appending messages never triggers it, only
// [Buffer.PrepareForLLM] does, so a burst of tool responses is compacted
// once rather than per message.
package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/54b3r/pfai-go/internal/budget"
)

const (
	// DefaultMaxContextTokens is the conversation token budget enforced by
	// PrepareForLLM. Conservative enough for small local models.
	DefaultMaxContextTokens = 3500

	// DefaultMaxToolResponseTokens is the per-message budget for tool output;
	// larger output is split into chunked Tool messages.
	DefaultMaxToolResponseTokens = 800
)

// cacheHintNote is appended to every synthesized compaction note so the model
// knows dropped tool output is still reachable through the tool cache.
const cacheHintNote = "Tool cache contains historical data."

// Message is one entry in the conversation log.
type Message struct {
	// ID uniquely identifies the message.
	ID uuid.UUID
	// Role is the author role (system, user, assistant, or tool).
	Role schema.RoleType
	// Content is the message text.
	Content string
	// Timestamp is when the message was appended.
	Timestamp time.Time
}

// Buffer is the ordered message log for one session. It is owned by a single
// session and is not safe for concurrent use; the owning session serializes
// access.
type Buffer struct {
	messages []Message

	maxContextTokens      int
	maxToolResponseTokens int
}

// NewBuffer constructs a Buffer with the given context budget.
// Non-positive values select the defaults.
func NewBuffer(maxContextTokens int) *Buffer {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &Buffer{
		maxContextTokens:      maxContextTokens,
		maxToolResponseTokens: DefaultMaxToolResponseTokens,
	}
}

// AddUser appends a user message. No compaction is triggered.
func (b *Buffer) AddUser(content string) {
	b.append(schema.User, content)
}

// AddAssistant appends an assistant message. No compaction is triggered.
func (b *Buffer) AddAssistant(content string) {
	b.append(schema.Assistant, content)
}

// AddSystem appends a system message. No compaction is triggered.
func (b *Buffer) AddSystem(content string) {
	b.append(schema.System, content)
}

// AddToolResponseSafely appends tool output, splitting it into "[CHUNK n]"
// prefixed Tool messages when it exceeds the per-message budget. Compaction
// is deferred to PrepareForLLM.
func (b *Buffer) AddToolResponseSafely(content string) {
	chunkSize := budget.ChunkSize(b.maxToolResponseTokens)
	if len(content) <= chunkSize {
		b.append(schema.Tool, content)
		return
	}
	for n := 1; len(content) > 0; n++ {
		end := chunkSize
		if end > len(content) {
			end = len(content)
		}
		b.append(schema.Tool, fmt.Sprintf("[CHUNK %d] %s", n, content[:end]))
		content = content[end:]
	}
}

// append adds a message with a fresh ID and timestamp.
func (b *Buffer) append(role schema.RoleType, content string) {
	b.messages = append(b.messages, Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// PrepareForLLM compacts the log if it exceeds the context budget and returns
// the messages in backend form. This is the only compaction entry point and
// must be called immediately before handing messages to a backend.
func (b *Buffer) PrepareForLLM() []*schema.Message {
	b.compactIfNeeded()

	out := make([]*schema.Message, 0, len(b.messages))
	for _, m := range b.messages {
		out = append(out, &schema.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// compactIfNeeded rebuilds the log as system messages + one synthesized
// query-log note + the most recent user/assistant exchange when the total
// estimate exceeds the budget. Tool messages are unconditionally dropped.
func (b *Buffer) compactIfNeeded() {
	if b.estimateTokens() <= b.maxContextTokens {
		return
	}

	var system, nonSystem []Message
	for _, m := range b.messages {
		switch m.Role {
		case schema.System:
			system = append(system, m)
		case schema.Tool:
			// dropped
		default:
			nonSystem = append(nonSystem, m)
		}
	}

	// Walk backward collecting the last exchange: everything from the final
	// message up to and including the most recent user message. Consecutive
	// assistant messages above that user message are not included.
	var lastExchange []Message
	for i := len(nonSystem) - 1; i >= 0; i-- {
		lastExchange = append([]Message{nonSystem[i]}, lastExchange...)
		if nonSystem[i].Role == schema.User {
			break
		}
	}

	// Every user query except the one captured in the last exchange becomes
	// a bullet in the synthesized note.
	var previousQueries []string
	for _, m := range nonSystem {
		if m.Role == schema.User {
			previousQueries = append(previousQueries, m.Content)
		}
	}
	if len(previousQueries) > 0 {
		previousQueries = previousQueries[:len(previousQueries)-1]
	}

	note := cacheHintNote
	if len(previousQueries) > 0 {
		note = fmt.Sprintf("Previous queries:\n- %s\n\n%s",
			strings.Join(previousQueries, "\n- "), cacheHintNote)
	}

	compacted := make([]Message, 0, len(system)+1+len(lastExchange))
	compacted = append(compacted, system...)
	compacted = append(compacted, Message{
		ID:        uuid.New(),
		Role:      schema.System,
		Content:   note,
		Timestamp: time.Now(),
	})
	compacted = append(compacted, lastExchange...)
	b.messages = compacted
}

// estimateTokens sums the per-message content estimates.
func (b *Buffer) estimateTokens() int {
	total := 0
	for _, m := range b.messages {
		total += budget.Estimate(m.Content)
	}
	return total
}

// Clear empties the message log.
func (b *Buffer) Clear() {
	b.messages = nil
}

// Restore replaces the message log with a snapshot previously taken via
// [Buffer.Messages]. Backends use this to roll back a turn's optimistic
// appends when generation fails or is cancelled; a length-based truncation
// would be defeated by compaction, which can shrink the log below the
// pre-append length while the aborted turn's query survives inside it.
func (b *Buffer) Restore(snapshot []Message) {
	b.messages = snapshot
}

// Len returns the number of messages currently in the log.
func (b *Buffer) Len() int {
	return len(b.messages)
}

// Messages returns a copy of the full message log.
func (b *Buffer) Messages() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// DisplayMessages returns the messages suitable for UI rendering: system and
// tool messages are excluded. The backend never consumes this view.
func (b *Buffer) DisplayMessages() []Message {
	var out []Message
	for _, m := range b.messages {
		if m.Role == schema.System || m.Role == schema.Tool {
			continue
		}
		out = append(out, m)
	}
	return out
}
