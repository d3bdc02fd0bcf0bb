// Package tools defines the portfolio data tools the agent can invoke during
// a conversation. Each tool satisfies both this package's DataTool interface
// and Eino's tool.BaseTool interface so it can be registered directly with a
// ReAct agent.
//
// Every tool runs the same pipeline: fingerprint its arguments, consult the
// result cache, and on a miss pull records from its provider, filter, render,
// compress if oversized, and store the result. Cached and uncached
// invocations with the same arguments return byte-identical payloads, empty
// results included.
package tools

import (
	"strings"

	"github.com/cloudwego/eino/components/tool"

	"github.com/54b3r/pfai-go/internal/cache"
	"github.com/54b3r/pfai-go/internal/compress"
	"github.com/54b3r/pfai-go/internal/portfolio"
)

// DataTool is the interface all portfolio-aware tools satisfy. It extends
// the basic Eino tool contract with Name and Description accessors so the
// agent can log and route tool calls without type assertions.
type DataTool interface {
	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// This text is sent to the LLM as part of the tool schema.
	Description() string
}

// Deps bundles the shared dependencies every tool binding needs.
type Deps struct {
	// Cache is the keyed result cache. Nil disables caching.
	Cache *cache.Cache

	// Providers hand out the record collections, called fresh per invocation.
	Providers portfolio.Providers

	// MaxResultTokens is the per-result token budget before compression.
	// Defaults to compress.AggressiveMaxTokens if zero.
	MaxResultTokens int

	// OnResult, if set, observes every produced tool result. The session
	// layer uses it to record oversized output into the conversation buffer
	// in bounded chunks.
	OnResult func(toolName, result string)
}

// All returns the full tool set bound to deps, ready for agent registration.
func All(deps *Deps) []tool.BaseTool {
	return []tool.BaseTool{
		NewHoldingsTool(deps),
		NewTransactionsTool(deps),
		NewPortfolioValueTool(deps),
		NewUserPrefTool(deps),
	}
}

// maxTokens resolves the configured result budget.
func (d *Deps) maxTokens() int {
	if d.MaxResultTokens > 0 {
		return d.MaxResultTokens
	}
	return compress.AggressiveMaxTokens
}

// run executes the cached pipeline for one tool invocation: cache lookup by
// fingerprint, execute on miss, store the result (empty results included).
func (d *Deps) run(toolName string, args []cache.Arg, execute func() string) string {
	if d.Cache != nil {
		if cached, ok := d.Cache.GetToolCall(toolName, args); ok {
			return d.emit(toolName, cached)
		}
	}

	result := execute()
	if d.Cache != nil {
		d.Cache.PutToolCall(toolName, args, result)
	}
	return d.emit(toolName, result)
}

func (d *Deps) emit(toolName, result string) string {
	if d.OnResult != nil {
		d.OnResult(toolName, result)
	}
	return result
}

// effectiveFilter reports whether v is an active filter value. Absent values
// and the sentinel "all" (case-insensitive) disable the filter.
func effectiveFilter(v *string) (string, bool) {
	if v == nil || strings.EqualFold(*v, "all") {
		return "", false
	}
	return *v, true
}

// containsFold is a case-insensitive substring match.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// strArg builds a fingerprint argument from an optional string.
func strArg(name string, v *string) cache.Arg {
	if v == nil {
		return cache.Arg{Name: name, Value: cache.Nil()}
	}
	return cache.Arg{Name: name, Value: cache.String(*v)}
}

// numArg builds a fingerprint argument from an optional number.
func numArg(name string, v *float64) cache.Arg {
	if v == nil {
		return cache.Arg{Name: name, Value: cache.Nil()}
	}
	return cache.Arg{Name: name, Value: cache.Number(*v)}
}
