package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"portfoliodash/internal/provider"
)

// Holding is one position of the tracked portfolio.
type Holding struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	Quantity      decimal.Decimal `json:"quantity"`
	Exchange      string          `json:"exchange"`
	Sector        string          `json:"sector"`
}

// Investment is purchase price times quantity.
func (h Holding) Investment() decimal.Decimal {
	return h.PurchasePrice.Mul(h.Quantity)
}

func h(name, symbol string, price, qty int64, sector string) Holding {
	return Holding{
		Name:          name,
		Symbol:        symbol,
		PurchasePrice: decimal.NewFromInt(price),
		Quantity:      decimal.NewFromInt(qty),
		Exchange:      "NSE",
		Sector:        sector,
	}
}

// Default is the seed portfolio used when no holdings file is configured.
func Default() []Holding {
	return []Holding{
		h("Tata Consultancy Services", "TCS.NS", 3200, 10, "Technology"),
		h("Infosys", "INFY.NS", 1500, 20, "Technology"),
		h("HDFC Bank", "HDFCBANK.NS", 1600, 15, "Financials"),
		h("Reliance Industries", "RELIANCE.NS", 2450, 25, "Energy"),
		h("Bharti Airtel", "BHARTIARTL.NS", 850, 30, "Telecommunications"),
		h("ICICI Bank", "ICICIBANK.NS", 950, 40, "Financials"),
		h("Hindustan Unilever", "HINDUNILVR.NS", 2400, 8, "Consumer Staples"),
		h("Sun Pharmaceutical", "SUNPHARMA.NS", 1100, 12, "Healthcare"),
	}
}

// Load reads a JSON array of holdings. An empty path or a missing file
// yields the default portfolio.
func Load(path string) ([]Holding, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read holdings: %w", err)
	}
	var hs []Holding
	if err := json.Unmarshal(b, &hs); err != nil {
		return nil, fmt.Errorf("parse holdings: %w", err)
	}
	for i := range hs {
		hs[i].Symbol = provider.Normalize(hs[i].Symbol)
		if hs[i].Symbol == "" {
			return nil, fmt.Errorf("holding %d (%q): missing symbol", i, hs[i].Name)
		}
		if hs[i].Sector == "" {
			hs[i].Sector = "Other"
		}
	}
	return hs, nil
}

// Symbols lists the distinct symbols of holdings in first-seen order.
func Symbols(hs []Holding) []string {
	seen := make(map[string]struct{}, len(hs))
	out := make([]string, 0, len(hs))
	for _, x := range hs {
		s := provider.Normalize(x.Symbol)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
