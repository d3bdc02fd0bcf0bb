package portfolio

import (
	"testing"
)

func Test_LoadContainer(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"holdings": [
			{"symbol": "AAPL", "assetclass": "Equity", "totalmarketvalue": 16896.31}
		],
		"transactions": [
			{"cusip": "037833100", "transactiontype": "BUY", "transactiondate": "2025-03-10", "transactionamt": -2100.50}
		],
		"portfolio_value": [
			{"clientID": "C123", "marketValue": 104000, "valueDate": "2025-03-31", "indices": ["S&P 500"]}
		]
	}`)

	c, err := LoadContainer(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(c.Holdings) != 1 || c.Holdings[0].Symbol != "AAPL" {
		t.Errorf("holdings = %+v", c.Holdings)
	}
	if len(c.Transactions) != 1 || c.Transactions[0].TransactionAmt != -2100.50 {
		t.Errorf("transactions = %+v", c.Transactions)
	}
	if len(c.PortfolioValues) != 1 || c.PortfolioValues[0].Indices[0] != "S&P 500" {
		t.Errorf("portfolio values = %+v", c.PortfolioValues)
	}
}

func Test_LoadContainer_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := LoadContainer([]byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}

func Test_SampleContainer(t *testing.T) {
	t.Parallel()

	c, err := SampleContainer()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(c.Holdings) == 0 || len(c.Transactions) == 0 || len(c.PortfolioValues) == 0 {
		t.Errorf("sample dataset incomplete: %d holdings, %d transactions, %d values",
			len(c.Holdings), len(c.Transactions), len(c.PortfolioValues))
	}
}

func Test_NewProviders_ReflectContainer(t *testing.T) {
	t.Parallel()

	c := &DataContainer{
		Holdings: []Holding{{Symbol: "BND"}},
	}
	p := NewProviders(c)

	if got := p.Holdings(); len(got) != 1 || got[0].Symbol != "BND" {
		t.Errorf("holdings provider = %+v", got)
	}
	if got := p.Transactions(); len(got) != 0 {
		t.Errorf("expected empty transactions, got %+v", got)
	}
	if got := p.PortfolioValues(); len(got) != 0 {
		t.Errorf("expected empty values, got %+v", got)
	}
}
