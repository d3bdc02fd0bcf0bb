package conversation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/54b3r/pfai-go/internal/budget"
)

func Test_Append_PreservesOrderAndRoles(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	b.AddSystem("instructions")
	b.AddUser("question")
	b.AddAssistant("answer")

	msgs := b.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	wantRoles := []schema.RoleType{schema.System, schema.User, schema.Assistant}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("message %d: role %q, want %q", i, m.Role, wantRoles[i])
		}
		if m.ID == uuid.Nil {
			t.Errorf("message %d: missing ID", i)
		}
		if m.Timestamp.IsZero() {
			t.Errorf("message %d: missing timestamp", i)
		}
	}
}

func Test_AddToolResponseSafely_SmallResponseUnchanged(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	b.AddToolResponseSafely("small result")

	msgs := b.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != schema.Tool {
		t.Errorf("role = %q, want tool", msgs[0].Role)
	}
	if msgs[0].Content != "small result" {
		t.Errorf("small responses must not be chunk-prefixed: %q", msgs[0].Content)
	}
}

func Test_AddToolResponseSafely_ChunksOversizedResponse(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	chunkSize := budget.ChunkSize(DefaultMaxToolResponseTokens)
	content := strings.Repeat("x", chunkSize*2+10)
	b.AddToolResponseSafely(content)

	msgs := b.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(msgs))
	}

	var rebuilt strings.Builder
	for i, m := range msgs {
		prefix := fmt.Sprintf("[CHUNK %d] ", i+1)
		if !strings.HasPrefix(m.Content, prefix) {
			t.Fatalf("chunk %d: missing prefix %q: %q…", i, prefix, m.Content[:20])
		}
		rebuilt.WriteString(strings.TrimPrefix(m.Content, prefix))
	}
	if rebuilt.String() != content {
		t.Error("reassembled chunks differ from original content")
	}
	if got := len(msgs[2].Content) - len("[CHUNK 3] "); got != 10 {
		t.Errorf("final chunk payload = %d bytes, want 10", got)
	}
}

func Test_AddToolResponseSafely_OneCharOverBoundaryMakesTwoChunks(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	chunkSize := budget.ChunkSize(DefaultMaxToolResponseTokens)

	b.AddToolResponseSafely(strings.Repeat("x", chunkSize))
	if got := b.Len(); got != 1 {
		t.Fatalf("content of exactly chunkSize bytes: expected 1 message, got %d", got)
	}

	b.Clear()
	b.AddToolResponseSafely(strings.Repeat("x", chunkSize+1))
	msgs := b.Messages()
	if len(msgs) != 2 {
		t.Fatalf("chunkSize+1 bytes: expected 2 chunks, got %d", len(msgs))
	}
	if got := len(msgs[1].Content) - len("[CHUNK 2] "); got != 1 {
		t.Errorf("second chunk payload = %d bytes, want 1", got)
	}
}

func Test_PrepareForLLM_UnderBudgetIsVerbatim(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	b.AddSystem("instructions")
	b.AddUser("q1")
	b.AddAssistant("a1")

	out := b.PrepareForLLM()
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[1].Role != schema.User || out[1].Content != "q1" {
		t.Errorf("unexpected message: %+v", out[1])
	}
	if b.Len() != 3 {
		t.Errorf("under-budget prepare must not mutate the log, len = %d", b.Len())
	}
}

func Test_PrepareForLLM_CompactsOverBudget(t *testing.T) {
	t.Parallel()

	// Budget of 100 tokens; each filler message is 50 tokens.
	b := NewBuffer(100)
	filler := strings.Repeat("x", 200)

	b.AddSystem("instructions")
	b.AddUser("first question " + filler)
	b.AddAssistant("first answer " + filler)
	b.AddToolResponseSafely("tool output " + filler)
	b.AddUser("latest question")
	b.AddAssistant("latest answer")

	out := b.PrepareForLLM()

	// system + synthesized note + last exchange (user, assistant)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages after compaction, got %d", len(out))
	}
	if out[0].Role != schema.System || out[0].Content != "instructions" {
		t.Errorf("original system message must survive: %+v", out[0])
	}
	note := out[1]
	if note.Role != schema.System {
		t.Errorf("note role = %q, want system", note.Role)
	}
	if !strings.Contains(note.Content, "Previous queries:") ||
		!strings.Contains(note.Content, "first question") {
		t.Errorf("note missing prior queries: %q", note.Content)
	}
	if !strings.Contains(note.Content, cacheHintNote) {
		t.Errorf("note missing cache hint: %q", note.Content)
	}
	if strings.Contains(note.Content, "latest question") {
		t.Error("the retained exchange's query must not appear in the note")
	}
	if out[2].Content != "latest question" || out[3].Content != "latest answer" {
		t.Errorf("last exchange not retained verbatim: %q / %q", out[2].Content, out[3].Content)
	}

	// No tool message survives compaction.
	for _, m := range out {
		if m.Role == schema.Tool {
			t.Error("tool messages must be dropped during compaction")
		}
	}
}

func Test_PrepareForLLM_SecondInvocationIsStable(t *testing.T) {
	t.Parallel()

	b := NewBuffer(100)
	filler := strings.Repeat("x", 200)
	b.AddSystem("instructions")
	b.AddUser("first question " + filler)
	b.AddAssistant("first answer " + filler)
	b.AddUser("latest question")
	b.AddAssistant("latest answer")

	first := b.PrepareForLLM()
	second := b.PrepareForLLM()

	if len(second) != len(first) {
		t.Fatalf("second pass changed message count: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if second[i].Role != first[i].Role || second[i].Content != first[i].Content {
			t.Errorf("message %d drifted between passes: %q -> %q",
				i, first[i].Content, second[i].Content)
		}
	}
}

func Test_Compaction_NoPriorQueriesOmitsBullets(t *testing.T) {
	t.Parallel()

	b := NewBuffer(10)
	b.AddUser("only question " + strings.Repeat("x", 200))
	b.AddAssistant("answer")

	out := b.PrepareForLLM()
	var note string
	for _, m := range out {
		if m.Role == schema.System {
			note = m.Content
		}
	}
	if note != cacheHintNote {
		t.Errorf("note = %q, want bare cache hint", note)
	}
}

func Test_Restore_RollsBackOptimisticAppends(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	b.AddSystem("instructions")
	snapshot := b.Messages()
	b.AddUser("doomed query")
	b.AddToolResponseSafely("doomed tool output")

	b.Restore(snapshot)

	if b.Len() != 1 {
		t.Fatalf("expected 1 message after rollback, got %d", b.Len())
	}
	if b.Messages()[0].Content != "instructions" {
		t.Errorf("rollback removed the wrong messages")
	}
}

func Test_Restore_RollsBackThroughCompaction(t *testing.T) {
	t.Parallel()

	// Over-budget buffer: PrepareForLLM rewrites the log to fewer messages
	// than it held before the aborted turn's append, so a length-based
	// rollback would keep the doomed query. Restore must not.
	b := NewBuffer(100)
	filler := strings.Repeat("x", 200)
	b.AddUser("first question " + filler)
	b.AddAssistant("first answer " + filler)
	b.AddUser("second question " + filler)
	b.AddAssistant("second answer " + filler)

	snapshot := b.Messages()
	b.AddUser("doomed query")
	b.PrepareForLLM()
	b.Restore(snapshot)

	if b.Len() != 4 {
		t.Fatalf("expected the 4 pre-turn messages back, got %d", b.Len())
	}
	for _, m := range b.Messages() {
		if strings.Contains(m.Content, "doomed query") {
			t.Fatalf("aborted turn's query survived rollback: %q", m.Content)
		}
	}
	if b.Messages()[0].Content != "first question "+filler {
		t.Error("rollback did not restore the pre-turn log verbatim")
	}
}

func Test_DisplayMessages_HidesSystemAndTool(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	b.AddSystem("instructions")
	b.AddUser("q")
	b.AddToolResponseSafely("raw tool output")
	b.AddAssistant("a")

	display := b.DisplayMessages()
	if len(display) != 2 {
		t.Fatalf("expected 2 display messages, got %d", len(display))
	}
	if display[0].Content != "q" || display[1].Content != "a" {
		t.Errorf("display = %v", display)
	}
}

func Test_Clear_EmptiesLog(t *testing.T) {
	t.Parallel()

	b := NewBuffer(0)
	b.AddUser("q")
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got %d messages", b.Len())
	}
}
