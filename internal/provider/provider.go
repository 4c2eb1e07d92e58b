package provider

import (
	"context"
	"strings"
)

// Raw is the upstream quote shape shared by all providers.
// Fields are nil when the provider omitted them.
type Raw struct {
	Symbol                  string   `json:"symbol"`
	RegularMarketPrice      *float64 `json:"regularMarketPrice"`
	TrailingPE              *float64 `json:"trailingPE"`
	EPSTrailingTwelveMonths *float64 `json:"epsTrailingTwelveMonths"`
}

// Data is the valuation snapshot kept per symbol.
type Data struct {
	CMP      *float64 `json:"cmp"`
	PERatio  *float64 `json:"peRatio"`
	Earnings *float64 `json:"earnings"`
}

// Data extracts the three tracked fields from a raw quote.
func (r Raw) Data() Data {
	return Data{
		CMP:      r.RegularMarketPrice,
		PERatio:  r.TrailingPE,
		Earnings: r.EPSTrailingTwelveMonths,
	}
}

// QuoteProvider is an upstream market data source.
// FetchMany may silently omit symbols it cannot resolve.
type QuoteProvider interface {
	Name() string
	FetchOne(ctx context.Context, symbol string) (Raw, error)
	FetchMany(ctx context.Context, symbols []string) ([]Raw, error)
}

// Normalize returns the canonical cache key for a ticker symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
