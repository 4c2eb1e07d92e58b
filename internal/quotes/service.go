// Package quotes is the boundary the dashboard talks to: a batched, cached
// GetQuotes for a symbol set and an uncached GetQuote for ad-hoc lookups.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfoliodash/internal/provider"
	"portfoliodash/internal/refresh"
)

var (
	// ErrInvalidRequest reports an empty or malformed symbol set.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProvider wraps an upstream failure on the uncached single-symbol path.
	ErrProvider = errors.New("provider failure")
)

// Quote is the uncached single-symbol lookup result.
type Quote struct {
	Symbol   string   `json:"symbol"`
	CMP      *float64 `json:"cmp"`
	PERatio  *float64 `json:"peRatio"`
	Earnings *float64 `json:"earnings"`
}

type Service struct {
	Provider  provider.QuoteProvider
	Refresher *refresh.Refresher
	// Now is read once per GetQuotes call. Defaults to time.Now.
	Now func() time.Time
}

func New(p provider.QuoteProvider, r *refresh.Refresher) *Service {
	return &Service{Provider: p, Refresher: r, Now: time.Now}
}

// GetQuotes returns exactly one result per distinct normalized symbol.
// Upstream failures are reported per symbol, never as an error.
func (s *Service) GetQuotes(ctx context.Context, symbols []string) (map[string]refresh.Result, error) {
	norm := Dedupe(symbols)
	if len(norm) == 0 {
		return nil, fmt.Errorf("%w: no symbols provided", ErrInvalidRequest)
	}
	return s.Refresher.Refresh(ctx, norm, s.now()), nil
}

// GetQuote fetches one symbol straight from the provider, bypassing the cache.
func (s *Service) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	sym := provider.Normalize(symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("%w: no symbol provided", ErrInvalidRequest)
	}
	raw, err := s.Provider.FetchOne(ctx, sym)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrProvider, sym, err)
	}
	d := raw.Data()
	return Quote{Symbol: sym, CMP: d.CMP, PERatio: d.PERatio, Earnings: d.Earnings}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Dedupe normalizes symbols, drops blanks and keeps first occurrence order.
func Dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = provider.Normalize(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ParseSymbols splits a comma-separated symbol list, e.g. "TCS.NS,INFY.NS".
func ParseSymbols(csv string) []string {
	return Dedupe(strings.Split(csv, ","))
}
