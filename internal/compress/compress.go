// Package compress renders portfolio record sets as text for the LLM and,
// when the full rendering would blow the per-response token budget, replaces
// it with a deterministic lossy digest: top-N detail plus aggregated
// remainder. Compression is always judged against the fully detailed
// rendering's estimated size, never against the raw record count.
package compress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/54b3r/pfai-go/internal/budget"
	"github.com/54b3r/pfai-go/internal/portfolio"
)

const (
	// DefaultMaxTokens is the per-tool-response token budget above which the
	// compressed digest is used instead of the full rendering.
	DefaultMaxTokens = 2000

	// AggressiveMaxTokens is the tighter budget applied to tool responses
	// that feed straight back into the model context.
	AggressiveMaxTokens = 1000

	// topHoldingsCount is how many holdings get full detail in a digest.
	topHoldingsCount = 10

	// notableOthersCount is how many of the remaining holdings are named in
	// the one-line "Notable others" list.
	notableOthersCount = 5

	// recentTransactionsCount is how many transactions get full detail.
	recentTransactionsCount = 20

	// topTransactionTypes is how many transaction types the analysis lists.
	topTransactionTypes = 5

	// topSecurities is how many securities the activity analysis lists.
	topSecurities = 7
)

// ShouldCompress reports whether text exceeds the token budget.
func ShouldCompress(text string, maxTokens int) bool {
	return budget.Estimate(text) > maxTokens
}

// ProcessHoldings renders holdings in full detail, falling back to the
// compressed digest only when the full rendering exceeds maxTokens.
func ProcessHoldings(holdings []portfolio.Holding, maxTokens int) string {
	formatted := FormatHoldings(holdings)
	if !ShouldCompress(formatted, maxTokens) {
		return formatted
	}
	return CompressHoldings(holdings)
}

// ProcessTransactions renders transactions in full detail, falling back to
// the compressed digest only when the full rendering exceeds maxTokens.
func ProcessTransactions(txns []portfolio.Transaction, maxTokens int) string {
	formatted := FormatTransactions(txns)
	if !ShouldCompress(formatted, maxTokens) {
		return formatted
	}
	return CompressTransactions(txns)
}

// ProcessPortfolioValue renders a valuation snapshot, falling back to the
// short digest when the full rendering exceeds maxTokens.
func ProcessPortfolioValue(pv portfolio.PortfolioValue, maxTokens int) string {
	formatted := FormatPortfolioValue(pv)
	if !ShouldCompress(formatted, maxTokens) {
		return formatted
	}
	return CompressPortfolioValue(pv)
}

// ProcessText proportionally truncates arbitrary text to approximate the
// token budget; within-budget text is returned unchanged.
func ProcessText(text string, maxTokens int) string {
	if !ShouldCompress(text, maxTokens) {
		return text
	}
	return GenericCompress(text, maxTokens)
}

// FormatHoldings renders every holding in full detail.
func FormatHoldings(holdings []portfolio.Holding) string {
	if len(holdings) == 0 {
		return "No holdings found."
	}

	parts := make([]string, 0, len(holdings))
	for _, h := range holdings {
		pnl := h.TotalMarketValue - h.TotalCostInBCCY
		parts = append(parts, fmt.Sprintf(
			"Symbol: %s | Asset Class: %s\nMarket Value: $%.2f\nMarket Price: $%.2f\nP&L: $%.2f (%.2f%%)\nRegion: %s | Account: %s",
			h.Symbol, h.AssetClass, h.TotalMarketValue, h.MarketPriceSCCY,
			pnl, h.MarketPLPercentInSCCY, h.CountryRegion, h.AccountType))
	}
	return strings.Join(parts, "\n\n")
}

// CompressHoldings produces the bounded digest: the top holdings by market
// value in detail, the remainder aggregated, and a whole-portfolio summary.
func CompressHoldings(holdings []portfolio.Holding) string {
	if len(holdings) == 0 {
		return "No holdings found."
	}

	sorted := make([]portfolio.Holding, len(holdings))
	copy(sorted, holdings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalMarketValue > sorted[j].TotalMarketValue
	})

	var totalValue, totalCost float64
	for _, h := range holdings {
		totalValue += h.TotalMarketValue
		totalCost += h.TotalCostInBCCY
	}

	topCount := topHoldingsCount
	if len(sorted) < topCount {
		topCount = len(sorted)
	}
	top := sorted[:topCount]
	remaining := sorted[topCount:]

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== TOP %d HOLDINGS ===\n", topCount)
	for i, h := range top {
		percentage := h.TotalMarketValue / totalValue * 100
		pnl := h.TotalMarketValue - h.TotalCostInBCCY
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, h.Symbol, h.AssetClass)
		fmt.Fprintf(&sb, "   Value: $%.2f (%.1f%%)\n", h.TotalMarketValue, percentage)
		fmt.Fprintf(&sb, "   P&L: $%.2f (%.1f%%)\n", pnl, h.MarketPLPercentInSCCY)
		fmt.Fprintf(&sb, "   Price: $%.2f | Region: %s\n\n", h.MarketPriceSCCY, h.CountryRegion)
	}

	if len(remaining) > 0 {
		var remainingValue float64
		for _, h := range remaining {
			remainingValue += h.TotalMarketValue
		}
		remainingPercentage := remainingValue / totalValue * 100

		sb.WriteString("=== OTHER HOLDINGS ===\n")
		fmt.Fprintf(&sb, "%d additional positions: $%.2f (%.1f%%)\n",
			len(remaining), remainingValue, remainingPercentage)

		notable := remaining
		if len(notable) > notableOthersCount {
			notable = notable[:notableOthersCount]
		}
		names := make([]string, 0, len(notable))
		for _, h := range notable {
			names = append(names, fmt.Sprintf("%s $%.0f", h.Symbol, h.TotalMarketValue))
		}
		fmt.Fprintf(&sb, "Notable others: %s\n", strings.Join(names, ", "))

		byClass := make(map[string]float64)
		for _, h := range remaining {
			byClass[h.AssetClass] += h.TotalMarketValue
		}
		type classValue struct {
			class string
			value float64
		}
		classes := make([]classValue, 0, len(byClass))
		for c, v := range byClass {
			classes = append(classes, classValue{c, v})
		}
		sort.Slice(classes, func(i, j int) bool {
			if classes[i].value != classes[j].value {
				return classes[i].value > classes[j].value
			}
			return classes[i].class < classes[j].class
		})
		classParts := make([]string, 0, len(classes))
		for _, cv := range classes {
			classParts = append(classParts, fmt.Sprintf("%s $%.0f", cv.class, cv.value))
		}
		fmt.Fprintf(&sb, "By asset class: %s\n", strings.Join(classParts, ", "))
	}

	totalPnL := totalValue - totalCost
	totalPnLPercent := totalPnL / totalCost * 100
	distinctClasses := make(map[string]struct{})
	for _, h := range holdings {
		distinctClasses[h.AssetClass] = struct{}{}
	}

	sb.WriteString("\nPORTFOLIO SUMMARY:\n")
	fmt.Fprintf(&sb, "Total Value: $%.2f\n", totalValue)
	fmt.Fprintf(&sb, "Total P&L: $%.2f (%.1f%%)\n", totalPnL, totalPnLPercent)
	fmt.Fprintf(&sb, "Positions: %d | Asset Classes: %d\n", len(holdings), len(distinctClasses))
	return sb.String()
}

// FormatTransactions renders every transaction in full detail.
func FormatTransactions(txns []portfolio.Transaction) string {
	if len(txns) == 0 {
		return "No transactions found."
	}

	parts := make([]string, 0, len(txns))
	for _, t := range txns {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Date: %s | Settlement: %s\n", t.TransactionDate, t.SettlementDate)
		fmt.Fprintf(&sb, "Type: %s\n", t.TransactionTypeDesc)
		fmt.Fprintf(&sb, "Security: %s\n", t.Description)
		fmt.Fprintf(&sb, "Shares: %.2f | Price: $%.2f\n", t.SharesOfFaceValue, t.CostPrice)
		fmt.Fprintf(&sb, "Amount: $%.2f", abs(t.TransactionAmt))
		if t.Commission > 0 || t.TaxWithheld > 0 || t.OtherExpenses > 0 {
			fmt.Fprintf(&sb, "\nFees - Commission: $%.2f | Tax: $%.2f | Other: $%.2f",
				t.Commission, t.TaxWithheld, t.OtherExpenses)
		}
		fmt.Fprintf(&sb, "\nAccount: %s | Currency: %s", t.Account, t.SettlementCurrency)
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}

// CompressTransactions produces the bounded digest: most recent activity in
// detail, then aggregate analyses by type, security, and cost.
func CompressTransactions(txns []portfolio.Transaction) string {
	if len(txns) == 0 {
		return "No transactions found."
	}

	sorted := make([]portfolio.Transaction, len(txns))
	copy(sorted, txns)
	// YYYY-MM-DD sorts correctly lexicographically; unparseable or empty
	// dates compare low and sink to the end of the descending order.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sortableDate(sorted[i].TransactionDate) > sortableDate(sorted[j].TransactionDate)
	})

	recentCount := recentTransactionsCount
	if len(sorted) < recentCount {
		recentCount = len(sorted)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== RECENT ACTIVITY (Last %d Transactions) ===\n", recentCount)
	for _, t := range sorted[:recentCount] {
		fmt.Fprintf(&sb, "%s: %s\n", t.TransactionDate, t.TransactionTypeDesc)
		fmt.Fprintf(&sb, "  %s | Shares: %.2f\n", t.Description, t.SharesOfFaceValue)
		fmt.Fprintf(&sb, "  Amount: $%.2f | Price: $%.2f\n", abs(t.TransactionAmt), t.CostPrice)
		if t.Commission > 0 {
			fmt.Fprintf(&sb, "  Commission: $%.2f", t.Commission)
		}
		if t.TaxWithheld > 0 {
			fmt.Fprintf(&sb, " | Tax: $%.2f", t.TaxWithheld)
		}
		sb.WriteString("\n\n")
	}

	type typeAgg struct {
		name   string
		count  int
		amount float64
	}
	byType := make(map[string]*typeAgg)
	for _, t := range txns {
		agg, ok := byType[t.TransactionTypeDesc]
		if !ok {
			agg = &typeAgg{name: t.TransactionTypeDesc}
			byType[t.TransactionTypeDesc] = agg
		}
		agg.count++
		agg.amount += abs(t.TransactionAmt)
	}
	types := make([]*typeAgg, 0, len(byType))
	for _, agg := range byType {
		types = append(types, agg)
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].count != types[j].count {
			return types[i].count > types[j].count
		}
		return types[i].name < types[j].name
	})
	if len(types) > topTransactionTypes {
		types = types[:topTransactionTypes]
	}

	sb.WriteString("=== TRANSACTION ANALYSIS ===\n")
	fmt.Fprintf(&sb, "Total Transactions: %d\n\n", len(txns))
	sb.WriteString("Transaction Types:\n")
	for _, agg := range types {
		fmt.Fprintf(&sb, "  %s: %d transactions | Total: $%.0f\n", agg.name, agg.count, agg.amount)
	}

	bySecurity := make(map[string]*typeAgg)
	for _, t := range txns {
		agg, ok := bySecurity[t.Description]
		if !ok {
			agg = &typeAgg{name: t.Description}
			bySecurity[t.Description] = agg
		}
		agg.count++
		agg.amount += abs(t.TransactionAmt)
	}
	securities := make([]*typeAgg, 0, len(bySecurity))
	for _, agg := range bySecurity {
		securities = append(securities, agg)
	}
	sort.Slice(securities, func(i, j int) bool {
		if securities[i].amount != securities[j].amount {
			return securities[i].amount > securities[j].amount
		}
		return securities[i].name < securities[j].name
	})
	if len(securities) > topSecurities {
		securities = securities[:topSecurities]
	}

	sb.WriteString("\nMost Active Securities:\n")
	for _, agg := range securities {
		fmt.Fprintf(&sb, "  %s: %d trades | Volume: $%.0f\n", agg.name, agg.count, agg.amount)
	}

	var commissions, taxes, volume float64
	for _, t := range txns {
		commissions += t.Commission
		taxes += t.TaxWithheld
		volume += abs(t.TransactionAmt)
	}
	sb.WriteString("\nCost Summary:\n")
	fmt.Fprintf(&sb, "Total Volume: $%.2f\n", volume)
	fmt.Fprintf(&sb, "Commissions: $%.2f\n", commissions)
	fmt.Fprintf(&sb, "Taxes Withheld: $%.2f\n", taxes)
	return sb.String()
}

// FormatPortfolioValue renders a valuation snapshot in full detail.
func FormatPortfolioValue(pv portfolio.PortfolioValue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Client ID: %s\n", pv.ClientID)
	fmt.Fprintf(&sb, "Market Value: $%.2f\n", pv.MarketValue)
	fmt.Fprintf(&sb, "Market Change: $%.2f\n", pv.MarketChange)
	fmt.Fprintf(&sb, "Value Date: %s\n\n", pv.ValueDate)
	sb.WriteString("Performance Metrics:\n")
	fmt.Fprintf(&sb, "Year-to-Date Rate of Return (Cumulative): %.2f%%\n", pv.YTDRateOfReturnCumulative)
	fmt.Fprintf(&sb, "Year-to-Date Return: %.2f%%\n", pv.YTDReturn)
	fmt.Fprintf(&sb, "Net ARR: %.2f%%\n", pv.NetARR)
	fmt.Fprintf(&sb, "Cumulative ARR: %.2f%%\n\n", pv.CumulativeARR)
	fmt.Fprintf(&sb, "Contribution and Withdrawals: $%.2f\n", pv.ContributionAndWithdraw)
	fmt.Fprintf(&sb, "Growth Cumulative Value Date: %s\n", pv.GrowthCumulativeValueDate)
	fmt.Fprintf(&sb, "Indices: %s", strings.Join(pv.Indices, ", "))
	return sb.String()
}

// CompressPortfolioValue produces the short fixed-field digest of a snapshot.
func CompressPortfolioValue(pv portfolio.PortfolioValue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Portfolio Value: $%.2f\n", pv.MarketValue)
	fmt.Fprintf(&sb, "Market Change: $%.2f\n", pv.MarketChange)
	fmt.Fprintf(&sb, "YTD Return: %.2f%%\n", pv.YTDRateOfReturnCumulative)
	fmt.Fprintf(&sb, "Net ARR: %.2f%% | Cumulative ARR: %.2f%%\n", pv.NetARR, pv.CumulativeARR)
	fmt.Fprintf(&sb, "Value Date: %s", pv.ValueDate)
	return sb.String()
}

// GenericCompress truncates text to the line count that proportionally
// approximates targetTokens, noting how many lines were dropped.
func GenericCompress(text string, targetTokens int) string {
	lines := strings.Split(text, "\n")
	estimated := budget.Estimate(text)
	if estimated == 0 {
		return text
	}
	targetLines := len(lines) * targetTokens / estimated
	if targetLines >= len(lines) {
		return text
	}

	remaining := len(lines) - targetLines
	result := strings.Join(lines[:targetLines], "\n")
	return result + fmt.Sprintf("\n\n... (%d more lines truncated for brevity)", remaining)
}

// sortableDate returns the comparable form of a YYYY-MM-DD date string.
// Anything that does not look like a date compares as the minimum.
func sortableDate(s string) string {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return ""
	}
	return s
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
