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

// TransactionsTool is an Eino tool that retrieves and filters the
// transaction history by security, type, account, date range, or amount.
type TransactionsTool struct {
	deps *Deps
}

// transactionsInput is the JSON-serialisable input schema for
// TransactionsTool. Date bounds are inclusive and compared lexicographically
// in YYYY-MM-DD form.
type transactionsInput struct {
	// CUSIP is a case-insensitive substring match on the security CUSIP.
	CUSIP *string `json:"cusip,omitempty"`

	// TransactionType is a case-insensitive substring match on the type code.
	TransactionType *string `json:"transactiontype,omitempty"`

	// Account is a case-insensitive substring match on the account name.
	Account *string `json:"account,omitempty"`

	// StartDate keeps transactions on or after this date.
	StartDate *string `json:"startDate,omitempty"`

	// EndDate keeps transactions on or before this date.
	EndDate *string `json:"endDate,omitempty"`

	// MinTransactionAmt keeps transactions with amount >= this value.
	MinTransactionAmt *float64 `json:"minTransactionAmt,omitempty"`

	// MaxTransactionAmt keeps transactions with amount <= this value.
	MaxTransactionAmt *float64 `json:"maxTransactionAmt,omitempty"`
}

// NewTransactionsTool constructs a TransactionsTool over the shared
// dependencies.
func NewTransactionsTool(deps *Deps) *TransactionsTool {
	return &TransactionsTool{deps: deps}
}

// Name returns the tool name registered with the agent.
func (t *TransactionsTool) Name() string { return "get_transactions" }

// Description returns the LLM-facing description of this tool.
func (t *TransactionsTool) Description() string {
	return "Retrieve and filter your transaction history by symbol (CUSIP), " +
		"transaction type, account, date range, or amount. " +
		"Pass 'all' for any text filter to disable it."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *TransactionsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"cusip": {
				Type: schema.String,
				Desc: "CUSIP or partial CUSIP of the security.",
			},
			"transactiontype": {
				Type: schema.String,
				Desc: "Transaction type (e.g. 'BUY', 'SELL').",
			},
			"account": {
				Type: schema.String,
				Desc: "Account name (e.g. 'Brokerage Account 1').",
			},
			"startDate": {
				Type: schema.String,
				Desc: "Start date (YYYY-MM-DD, inclusive).",
			},
			"endDate": {
				Type: schema.String,
				Desc: "End date (YYYY-MM-DD, inclusive).",
			},
			"minTransactionAmt": {
				Type: schema.Number,
				Desc: "Minimum transaction amount.",
			},
			"maxTransactionAmt": {
				Type: schema.Number,
				Desc: "Maximum transaction amount.",
			},
		}),
	}, nil
}

// InvokableRun filters the transaction history per the JSON-encoded input
// and returns the rendered (possibly compressed) result.
func (t *TransactionsTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var input transactionsInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("get_transactions: invalid input: %w", err)
	}

	args := []cache.Arg{
		strArg("cusip", input.CUSIP),
		strArg("transactiontype", input.TransactionType),
		strArg("account", input.Account),
		strArg("startDate", input.StartDate),
		strArg("endDate", input.EndDate),
		numArg("minTransactionAmt", input.MinTransactionAmt),
		numArg("maxTransactionAmt", input.MaxTransactionAmt),
	}

	return t.deps.run(t.Name(), args, func() string {
		filtered := filterTransactions(t.deps.Providers.Transactions(), &input)
		if len(filtered) == 0 {
			return "No transactions found matching the specified filters."
		}
		return compress.ProcessTransactions(filtered, t.deps.maxTokens())
	}), nil
}

func filterTransactions(all []portfolio.Transaction, input *transactionsInput) []portfolio.Transaction {
	var filtered []portfolio.Transaction
	for _, txn := range all {
		if v, ok := effectiveFilter(input.CUSIP); ok && !containsFold(txn.CUSIP, v) {
			continue
		}
		if v, ok := effectiveFilter(input.TransactionType); ok && !containsFold(txn.TransactionType, v) {
			continue
		}
		if v, ok := effectiveFilter(input.Account); ok && !containsFold(txn.Account, v) {
			continue
		}
		if v, ok := effectiveFilter(input.StartDate); ok && txn.TransactionDate < v {
			continue
		}
		if v, ok := effectiveFilter(input.EndDate); ok && txn.TransactionDate > v {
			continue
		}
		if input.MinTransactionAmt != nil && txn.TransactionAmt < *input.MinTransactionAmt {
			continue
		}
		if input.MaxTransactionAmt != nil && txn.TransactionAmt > *input.MaxTransactionAmt {
			continue
		}
		filtered = append(filtered, txn)
	}
	return filtered
}
