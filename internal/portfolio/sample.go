package portfolio

import (
	_ "embed"
)

// sampleData is the bundled mock dataset used when no dataset file is
// configured. It mirrors the shape of a real portfolio export: holdings,
// transaction history, and a monthly valuation series.
//
//go:embed sampledata.json
var sampleData []byte

// SampleContainer returns the bundled mock dataset.
func SampleContainer() (*DataContainer, error) {
	return LoadContainer(sampleData)
}
