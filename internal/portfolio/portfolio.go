// Package portfolio defines the financial record types served to the agent's
// data tools, and the provider closures that hand them out. Providers are
// read-only snapshots: tools call them fresh on every invocation and never
// mutate the returned slices.
package portfolio

import (
	"encoding/json"
	"fmt"
)

// Holding is a single portfolio position.
type Holding struct {
	// Symbol is the security ticker (e.g. "AAPL").
	Symbol string `json:"symbol"`
	// AssetClass categorises the position (e.g. "Equity", "Fixed Income").
	AssetClass string `json:"assetclass"`
	// CountryRegion is the country or region of the security.
	CountryRegion string `json:"countryregion"`
	// AccountType is the holding account category (e.g. "Brokerage").
	AccountType string `json:"accounttype"`
	// MarketPLInSCCY is the profit/loss in settlement currency.
	MarketPLInSCCY float64 `json:"marketplinsccy"`
	// MarketPLPercentInSCCY is the profit/loss percentage in settlement currency.
	MarketPLPercentInSCCY float64 `json:"marketplpercentinsccy"`
	// MarketValueInBCCY is the market value in base currency.
	MarketValueInBCCY float64 `json:"marketvalueinbccy"`
	// TotalMarketValue is the total market value of the position.
	TotalMarketValue float64 `json:"totalmarketvalue"`
	// TotalCostInBCCY is the total cost basis in base currency.
	TotalCostInBCCY float64 `json:"totalcostinbccy"`
	// MarketPriceSCCY is the per-unit market price in settlement currency.
	MarketPriceSCCY float64 `json:"marketpricesccy"`
}

// Transaction is a single trade or cash movement.
type Transaction struct {
	// CUSIP identifies the security.
	CUSIP string `json:"cusip"`
	// TransactionType is the short type code (e.g. "BUY", "SELL").
	TransactionType string `json:"transactiontype"`
	// TransactionTypeDesc is the human-readable type description.
	TransactionTypeDesc string `json:"transactiontypedesc"`
	// Description names the security traded.
	Description string `json:"description"`
	// Account is the account the transaction settled in.
	Account string `json:"account"`
	// TransactionDate is the trade date in YYYY-MM-DD form.
	TransactionDate string `json:"transactiondate"`
	// SettlementDate is the settlement date in YYYY-MM-DD form.
	SettlementDate string `json:"settlementdate"`
	// SharesOfFaceValue is the traded quantity.
	SharesOfFaceValue float64 `json:"sharesoffacevalue"`
	// TransactionAmt is the signed cash amount of the transaction.
	TransactionAmt float64 `json:"transactionamt"`
	// CostPrice is the per-unit execution price.
	CostPrice float64 `json:"costprice"`
	// Commission is the commission charged.
	Commission float64 `json:"commission"`
	// TaxWithheld is the tax withheld on the transaction.
	TaxWithheld float64 `json:"taxwithheld"`
	// OtherExpenses holds any remaining fees.
	OtherExpenses float64 `json:"otherexpensesm"`
	// SettlementCurrency is the settlement currency code.
	SettlementCurrency string `json:"stccy"`
}

// PortfolioValue is a whole-portfolio valuation snapshot for one date.
type PortfolioValue struct {
	// ClientID identifies the portfolio owner.
	ClientID string `json:"clientID"`
	// MarketValue is the total portfolio market value.
	MarketValue float64 `json:"marketValue"`
	// MarketChange is the value change since the prior snapshot.
	MarketChange float64 `json:"marketChange"`
	// ValueDate is the snapshot date in YYYY-MM-DD form.
	ValueDate string `json:"valueDate"`
	// YTDRateOfReturnCumulative is the cumulative year-to-date return percentage.
	YTDRateOfReturnCumulative float64 `json:"yearToDateRateOfReturnCumulative"`
	// YTDReturn is the year-to-date return percentage.
	YTDReturn float64 `json:"yearToDateOfReturn"`
	// NetARR is the net annualised rate of return percentage.
	NetARR float64 `json:"netARR"`
	// CumulativeARR is the cumulative annualised rate of return percentage.
	CumulativeARR float64 `json:"cumulativeARR"`
	// ContributionAndWithdraw is the net contributions/withdrawals amount.
	ContributionAndWithdraw float64 `json:"contributionAndWithdraw"`
	// GrowthCumulativeValueDate is the reference date for cumulative growth.
	GrowthCumulativeValueDate string `json:"growthCumulativeValueDate"`
	// Indices lists the benchmark indices tracked for this snapshot.
	Indices []string `json:"indices"`
}

// DataContainer bundles the three record collections loaded from one dataset.
type DataContainer struct {
	// Holdings is the full positions list.
	Holdings []Holding `json:"holdings"`
	// Transactions is the full transaction history.
	Transactions []Transaction `json:"transactions"`
	// PortfolioValues is the valuation snapshot series.
	PortfolioValues []PortfolioValue `json:"portfolio_value"`
}

// LoadContainer decodes a DataContainer from raw JSON.
func LoadContainer(data []byte) (*DataContainer, error) {
	var c DataContainer
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("portfolio: decode container: %w", err)
	}
	return &c, nil
}

// HoldingsProvider returns the current full holdings collection.
// Implementations must be side-effect free; callers never mutate the result.
type HoldingsProvider func() []Holding

// TransactionsProvider returns the current full transaction history.
type TransactionsProvider func() []Transaction

// PortfolioValuesProvider returns the current valuation snapshot series.
type PortfolioValuesProvider func() []PortfolioValue

// Providers bundles the three data accessors handed to the tool layer.
type Providers struct {
	// Holdings returns the positions collection.
	Holdings HoldingsProvider
	// Transactions returns the transaction history.
	Transactions TransactionsProvider
	// PortfolioValues returns the valuation series.
	PortfolioValues PortfolioValuesProvider
}

// NewProviders builds snapshot providers over a loaded container.
func NewProviders(c *DataContainer) Providers {
	return Providers{
		Holdings:        func() []Holding { return c.Holdings },
		Transactions:    func() []Transaction { return c.Transactions },
		PortfolioValues: func() []PortfolioValue { return c.PortfolioValues },
	}
}
