package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pfai-go/internal/cache"
	"github.com/54b3r/pfai-go/internal/compress"
	"github.com/54b3r/pfai-go/internal/portfolio"
)

// HoldingsTool is an Eino tool that retrieves and filters portfolio
// positions. Results are cached by argument fingerprint and compressed when
// the full rendering would exceed the result token budget.
type HoldingsTool struct {
	deps *Deps
}

// holdingsInput is the JSON-serialisable input schema for HoldingsTool.
// Pointer fields distinguish "absent" from an explicit zero value.
type holdingsInput struct {
	// Symbol is a case-insensitive substring match on the ticker.
	Symbol *string `json:"symbol,omitempty"`

	// AssetClass is a case-insensitive substring match on the asset class.
	AssetClass *string `json:"assetclass,omitempty"`

	// CountryRegion is a case-insensitive substring match on the region.
	CountryRegion *string `json:"countryregion,omitempty"`

	// AccountType is a case-insensitive substring match on the account type.
	AccountType *string `json:"accounttype,omitempty"`

	// MinMarketPL keeps holdings with profit/loss >= this value.
	MinMarketPL *float64 `json:"min_marketplinsccy,omitempty"`

	// MaxMarketPL keeps holdings with profit/loss <= this value.
	MaxMarketPL *float64 `json:"max_marketplinsccy,omitempty"`

	// MinMarketValue keeps holdings with market value >= this value.
	MinMarketValue *float64 `json:"min_marketvalueinbccy,omitempty"`

	// MaxMarketValue keeps holdings with market value <= this value.
	MaxMarketValue *float64 `json:"max_marketvalueinbccy,omitempty"`
}

// NewHoldingsTool constructs a HoldingsTool over the shared dependencies.
func NewHoldingsTool(deps *Deps) *HoldingsTool {
	return &HoldingsTool{deps: deps}
}

// Name returns the tool name registered with the agent.
func (t *HoldingsTool) Name() string { return "get_holdings" }

// Description returns the LLM-facing description of this tool.
func (t *HoldingsTool) Description() string {
	return "Retrieve holdings, filterable by symbol, asset class, region, " +
		"account type, profit/loss, or value. " +
		"Pass 'all' for any text filter to disable it."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *HoldingsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"symbol": {
				Type: schema.String,
				Desc: "The security symbol (e.g. 'AAPL').",
			},
			"assetclass": {
				Type: schema.String,
				Desc: "Asset class (e.g. 'Equity', 'Fixed Income').",
			},
			"countryregion": {
				Type: schema.String,
				Desc: "Country or region (e.g. 'United States', 'Hong Kong').",
			},
			"accounttype": {
				Type: schema.String,
				Desc: "Account type (e.g. 'Brokerage', 'Retirement').",
			},
			"min_marketplinsccy": {
				Type: schema.Number,
				Desc: "Only holdings with profit/loss (in settlement currency) >= this value.",
			},
			"max_marketplinsccy": {
				Type: schema.Number,
				Desc: "Only holdings with profit/loss (in settlement currency) <= this value.",
			},
			"min_marketvalueinbccy": {
				Type: schema.Number,
				Desc: "Only holdings with market value (in base currency) >= this value.",
			},
			"max_marketvalueinbccy": {
				Type: schema.Number,
				Desc: "Only holdings with market value (in base currency) <= this value.",
			},
		}),
	}, nil
}

// InvokableRun filters the holdings collection per the JSON-encoded input
// and returns the rendered (possibly compressed) result.
func (t *HoldingsTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input holdingsInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("get_holdings: invalid input: %w", err)
	}

	args := []cache.Arg{
		strArg("symbol", input.Symbol),
		strArg("assetclass", input.AssetClass),
		strArg("countryregion", input.CountryRegion),
		strArg("accounttype", input.AccountType),
		numArg("min_marketplinsccy", input.MinMarketPL),
		numArg("max_marketplinsccy", input.MaxMarketPL),
		numArg("min_marketvalueinbccy", input.MinMarketValue),
		numArg("max_marketvalueinbccy", input.MaxMarketValue),
	}

	return t.deps.run(t.Name(), args, func() string {
		filtered := filterHoldings(t.deps.Providers.Holdings(), &input)
		if len(filtered) == 0 {
			return "No holdings found matching the specified filters."
		}
		return compress.ProcessHoldings(filtered, t.deps.maxTokens())
	}), nil
}

func filterHoldings(all []portfolio.Holding, input *holdingsInput) []portfolio.Holding {
	var filtered []portfolio.Holding
	for _, h := range all {
		if v, ok := effectiveFilter(input.Symbol); ok && !containsFold(h.Symbol, v) {
			continue
		}
		if v, ok := effectiveFilter(input.AssetClass); ok && !containsFold(h.AssetClass, v) {
			continue
		}
		if v, ok := effectiveFilter(input.CountryRegion); ok && !containsFold(h.CountryRegion, v) {
			continue
		}
		if v, ok := effectiveFilter(input.AccountType); ok && !containsFold(h.AccountType, v) {
			continue
		}
		if input.MinMarketPL != nil && h.MarketPLInSCCY < *input.MinMarketPL {
			continue
		}
		if input.MaxMarketPL != nil && h.MarketPLInSCCY > *input.MaxMarketPL {
			continue
		}
		if input.MinMarketValue != nil && h.MarketValueInBCCY < *input.MinMarketValue {
			continue
		}
		if input.MaxMarketValue != nil && h.MarketValueInBCCY > *input.MaxMarketValue {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered
}
