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
	"github.com/54b3r/pfai-go/internal/compress"
	"github.com/54b3r/pfai-go/internal/portfolio"
)

// PortfolioValueTool is an Eino tool that queries the portfolio valuation
// snapshot series, with optional summary statistics across the filtered
// range.
type PortfolioValueTool struct {
	deps *Deps
}

// portfolioValueInput is the JSON-serialisable input schema for
// PortfolioValueTool.
type portfolioValueInput struct {
	// StartDate keeps snapshots on or after this date.
	StartDate *string `json:"startDate,omitempty"`

	// EndDate keeps snapshots on or before this date.
	EndDate *string `json:"endDate,omitempty"`

	// Index is a case-insensitive substring match against the benchmark
	// indices tracked on each snapshot.
	Index *string `json:"index,omitempty"`

	// Summary selects a statistic over the filtered range: "highest",
	// "lowest", or "trend". Absent or empty returns the raw snapshots.
	Summary *string `json:"summary,omitempty"`
}

// NewPortfolioValueTool constructs a PortfolioValueTool over the shared
// dependencies.
func NewPortfolioValueTool(deps *Deps) *PortfolioValueTool {
	return &PortfolioValueTool{deps: deps}
}

// Name returns the tool name registered with the agent.
func (t *PortfolioValueTool) Name() string { return "get_portfolio_value" }

// Description returns the LLM-facing description of this tool.
func (t *PortfolioValueTool) Description() string {
	return "Query your portfolio value snapshots. Filter by date range or index, " +
		"or retrieve summary statistics like highest, lowest, and trend over time."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *PortfolioValueTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"startDate": {
				Type: schema.String,
				Desc: "Start date (inclusive, format YYYY-MM-DD).",
			},
			"endDate": {
				Type: schema.String,
				Desc: "End date (inclusive, format YYYY-MM-DD).",
			},
			"index": {
				Type: schema.String,
				Desc: "Filter for a specific market index (e.g. 'S&P 500').",
			},
			"summary": {
				Type: schema.String,
				Desc: "Return summary: 'highest', 'lowest', 'trend', or leave blank for raw results.",
			},
		}),
	}, nil
}

// InvokableRun filters the snapshot series per the JSON-encoded input and
// returns either the raw rendering or the requested summary statistic.
func (t *PortfolioValueTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input portfolioValueInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("get_portfolio_value: invalid input: %w", err)
	}

	args := []cache.Arg{
		strArg("startDate", input.StartDate),
		strArg("endDate", input.EndDate),
		strArg("index", input.Index),
		strArg("summary", input.Summary),
	}

	return t.deps.run(t.Name(), args, func() string {
		filtered := filterPortfolioValues(t.deps.Providers.PortfolioValues(), &input)
		if len(filtered) == 0 {
			return "No portfolio values found matching the specified filters."
		}

		summary := ""
		if input.Summary != nil {
			summary = strings.ToLower(strings.TrimSpace(*input.Summary))
		}
		switch summary {
		case "highest":
			return "Highest portfolio value:\n" + compress.FormatPortfolioValue(extremeByValue(filtered, true))
		case "lowest":
			return "Lowest portfolio value:\n" + compress.FormatPortfolioValue(extremeByValue(filtered, false))
		case "trend":
			return renderTrend(filtered)
		}

		parts := make([]string, 0, len(filtered))
		for _, pv := range filtered {
			parts = append(parts, compress.FormatPortfolioValue(pv))
		}
		return compress.ProcessText(strings.Join(parts, "\n\n"), t.deps.maxTokens())
	}), nil
}

func filterPortfolioValues(all []portfolio.PortfolioValue, input *portfolioValueInput) []portfolio.PortfolioValue {
	var filtered []portfolio.PortfolioValue
	for _, pv := range all {
		if v, ok := effectiveFilter(input.Index); ok && !indicesContain(pv.Indices, v) {
			continue
		}
		if v, ok := effectiveFilter(input.StartDate); ok && pv.ValueDate < v {
			continue
		}
		if v, ok := effectiveFilter(input.EndDate); ok && pv.ValueDate > v {
			continue
		}
		filtered = append(filtered, pv)
	}
	return filtered
}

func indicesContain(indices []string, needle string) bool {
	for _, idx := range indices {
		if containsFold(idx, needle) {
			return true
		}
	}
	return false
}

// extremeByValue returns the snapshot with the highest (or lowest) market
// value. Ties resolve to the earliest snapshot in series order.
func extremeByValue(values []portfolio.PortfolioValue, highest bool) portfolio.PortfolioValue {
	best := values[0]
	for _, pv := range values[1:] {
		if highest && pv.MarketValue > best.MarketValue {
			best = pv
		}
		if !highest && pv.MarketValue < best.MarketValue {
			best = pv
		}
	}
	return best
}

// renderTrend lists date/value points in ascending date order.
func renderTrend(values []portfolio.PortfolioValue) string {
	points := make([]portfolio.PortfolioValue, len(values))
	copy(points, values)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].ValueDate < points[j].ValueDate
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Portfolio value trend (%d points):\n", len(points))
	for _, pv := range points {
		fmt.Fprintf(&sb, "%s: $%.2f\n", pv.ValueDate, pv.MarketValue)
	}
	return strings.TrimRight(sb.String(), "\n")
}
