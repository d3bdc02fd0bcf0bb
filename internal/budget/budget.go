// Package budget provides token estimation for the pfai agent. Because the
// agent supports multiple LLM backends with different tokenizers, this package
// uses a character-based heuristic: 1 token ≈ 4 characters (English prose and
// numbers-heavy financial text). Every budget decision in the system —
// conversation compaction, tool-output compression, session context health —
// goes through [Estimate], so decisions are consistent relative to the same
// heuristic rather than mixed with exact tokenizer counts.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

// charsPerToken is the character-to-token ratio used for estimation.
// 4 chars/token is standard for English and tabular data.
const charsPerToken = 4

// Estimate returns the estimated token count for s: len(s)/4, truncating.
// Chunk sizing and trim arithmetic elsewhere rely on this being exact
// integer division, so short non-empty strings estimate to zero.
func Estimate(s string) int {
	return len(s) / charsPerToken
}

// EstimateMessages returns the summed content estimate for a message slice.
// Only content is counted; role strings and per-message API overhead are
// deliberately ignored so the result matches the per-message estimates used
// by the compaction policy.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += Estimate(m.Content)
	}
	return total
}

// ChunkSize returns the character length of one chunk for a given per-chunk
// token budget.
func ChunkSize(maxTokens int) int {
	return maxTokens * charsPerToken
}
