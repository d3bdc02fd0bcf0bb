package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pfai-go/internal/cache"
)

// UserPrefTool is an Eino tool that analyzes a user activity log and
// extracts the user's top symbols, most common actions, and primary focus.
// Malformed input yields the descriptive string "Invalid userlog format"
// rather than an error, so the model can recover in-conversation.
type UserPrefTool struct {
	deps *Deps
}

// userPrefInput is the JSON-serialisable input schema for UserPrefTool.
type userPrefInput struct {
	// Userlog is the activity log as a JSON string with an "activities"
	// array of events with timestamps and properties.
	Userlog string `json:"userlog"`

	// Count is how many top items to return per category. Defaults to 3.
	Count int `json:"count,omitempty"`
}

// userLog mirrors the expected shape of the activity log payload.
type userLog struct {
	Activities []userActivity `json:"activities"`
}

type userActivity struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties"`
}

// userPreferenceSummary is the analysis result returned to the model.
type userPreferenceSummary struct {
	TopSymbols       []string `json:"top_symbols"`
	TopActions       []string `json:"top_actions"`
	PrimaryFocus     string   `json:"primary_focus"`
	SummaryStatement string   `json:"summary_statement"`
}

const defaultTopCount = 3

// NewUserPrefTool constructs a UserPrefTool over the shared dependencies.
func NewUserPrefTool(deps *Deps) *UserPrefTool {
	return &UserPrefTool{deps: deps}
}

// Name returns the tool name registered with the agent.
func (t *UserPrefTool) Name() string { return "get_user_pref" }

// Description returns the LLM-facing description of this tool.
func (t *UserPrefTool) Description() string {
	return "Analyze user activity log and extract their top preferences automatically"
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *UserPrefTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"userlog": {
				Type:     schema.String,
				Desc:     "User activity log as JSON string with 'activities' array containing events with timestamps and properties.",
				Required: true,
			},
			"count": {
				Type: schema.Integer,
				Desc: "Number of top items to return for each category. Default: 3",
			},
		}),
	}, nil
}

// InvokableRun analyzes the activity log and returns the preference summary
// as pretty-printed JSON.
func (t *UserPrefTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input userPrefInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("get_user_pref: invalid input: %w", err)
	}
	count := input.Count
	if count <= 0 {
		count = defaultTopCount
	}

	args := []cache.Arg{
		{Name: "userlog", Value: cache.String(input.Userlog)},
		{Name: "count", Value: cache.Int(int64(count))},
	}

	return t.deps.run(t.Name(), args, func() string {
		var log userLog
		if err := json.Unmarshal([]byte(input.Userlog), &log); err != nil || log.Activities == nil {
			return "Invalid userlog format"
		}

		summary := analyzeUserLog(log.Activities, count)
		encoded, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return "Error encoding summary"
		}
		return string(encoded)
	}), nil
}

// analyzeUserLog counts actions, ticker-shaped symbols, and recurring terms
// across the activity log and derives the user's primary focus.
func analyzeUserLog(activities []userActivity, topCount int) userPreferenceSummary {
	symbolCounts := map[string]int{}
	actionCounts := map[string]int{}
	termCounts := map[string]int{}

	for _, activity := range activities {
		actionCounts[activity.Event]++

		var props []string
		for _, v := range activity.Properties {
			if s, ok := v.(string); ok {
				props = append(props, s)
			}
		}
		sort.Strings(props)
		allText := activity.Event + " " + strings.Join(props, " ")

		for _, term := range extractTerms(allText) {
			termCounts[term]++
		}
		for _, token := range splitTokens(allText) {
			if looksLikeSymbol(token) {
				symbolCounts[token]++
			}
		}
	}

	topTerms := topCounted(termCounts, 10)
	focus := inferFocus(topTerms)
	topSymbols := topCounted(symbolCounts, topCount)
	topActions := topCounted(actionCounts, topCount)

	keyTerms := topTerms
	if len(keyTerms) > 5 {
		keyTerms = keyTerms[:5]
	}

	return userPreferenceSummary{
		TopSymbols:       topSymbols,
		TopActions:       topActions,
		PrimaryFocus:     focus,
		SummaryStatement: summaryStatement(topSymbols, topActions, focus, keyTerms),
	}
}

// extractTerms lowercases text and keeps alphanumeric words longer than two
// characters.
func extractTerms(text string) []string {
	var terms []string
	for _, token := range splitTokens(strings.ToLower(text)) {
		if len(token) > 2 {
			terms = append(terms, token)
		}
	}
	return terms
}

// splitTokens splits text on every non-alphanumeric rune.
func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

// looksLikeSymbol reports whether token is shaped like a ticker: two to
// five uppercase letters.
func looksLikeSymbol(token string) bool {
	if len(token) < 2 || len(token) > 5 {
		return false
	}
	for _, r := range token {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// inferFocus derives a focus label from the most frequent terms.
func inferFocus(terms []string) string {
	for _, term := range terms {
		switch term {
		case "holdings", "performance", "transaction":
			return term + "_focused"
		}
	}
	if len(terms) > 0 {
		return terms[0] + "_activity"
	}
	return "general_activity"
}

// topCounted returns the count-descending top n keys, ties broken
// alphabetically for determinism.
func topCounted(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func summaryStatement(symbols, actions []string, focus string, keyTerms []string) string {
	var parts []string
	if len(symbols) > 0 {
		parts = append(parts, "Top symbols: "+strings.Join(symbols, ", "))
	}
	if len(actions) > 0 {
		parts = append(parts, "Most common actions: "+strings.Join(actions, ", "))
	}
	parts = append(parts, "Primary focus: "+focus)
	if len(keyTerms) > 0 {
		parts = append(parts, "Key terms: "+strings.Join(keyTerms, ", "))
	}
	return strings.Join(parts, ". ")
}
