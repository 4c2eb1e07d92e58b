package financego

import (
	"context"
	"fmt"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/equity"

	"portfoliodash/internal/provider"
)

// Backend is the subset of finance-go used by the adapter.
type Backend interface {
	Get(symbol string) (*finance.Equity, error)
	List(symbols []string) ([]*finance.Equity, error)
}

// EquityBackend calls Yahoo Finance through finance-go's equity package.
type EquityBackend struct{}

func (EquityBackend) Get(symbol string) (*finance.Equity, error) { return equity.Get(symbol) }

func (EquityBackend) List(symbols []string) ([]*finance.Equity, error) {
	iter := equity.List(symbols)
	out := make([]*finance.Equity, 0, len(symbols))
	for iter.Next() {
		out = append(out, iter.Equity())
	}
	return out, iter.Err()
}

type Config struct {
	Name string // display name, default: Yahoo
}

// Adapter exposes finance-go as a provider.QuoteProvider.
type Adapter struct {
	cfg Config
	be  Backend
}

func New(cfg Config, be Backend) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "Yahoo"
	}
	if be == nil {
		be = EquityBackend{}
	}
	return &Adapter{cfg: cfg, be: be}
}

func (a *Adapter) Name() string { return a.cfg.Name }

func (a *Adapter) FetchOne(ctx context.Context, symbol string) (provider.Raw, error) {
	var eq *finance.Equity
	err := call(ctx, func() (err error) {
		eq, err = a.be.Get(symbol)
		return err
	})
	if err != nil {
		return provider.Raw{}, fmt.Errorf("%s quote %s: %w", a.cfg.Name, symbol, err)
	}
	// finance-go reports an unknown symbol as a nil quote without error.
	if eq == nil {
		return provider.Raw{}, fmt.Errorf("%s quote %s: not found", a.cfg.Name, symbol)
	}
	return toRaw(eq), nil
}

func (a *Adapter) FetchMany(ctx context.Context, symbols []string) ([]provider.Raw, error) {
	var eqs []*finance.Equity
	err := call(ctx, func() (err error) {
		eqs, err = a.be.List(symbols)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s batch quote: %w", a.cfg.Name, err)
	}
	out := make([]provider.Raw, 0, len(eqs))
	for _, eq := range eqs {
		if eq == nil {
			continue
		}
		out = append(out, toRaw(eq))
	}
	return out, nil
}

// call runs fn, returning early if ctx is done first.
// finance-go has no context support, so an abandoned call finishes in the background.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// toRaw maps finance-go's zero values to absent fields, since the library
// decodes into plain float64 and cannot tell missing from zero.
func toRaw(eq *finance.Equity) provider.Raw {
	return provider.Raw{
		Symbol:                  eq.Symbol,
		RegularMarketPrice:      nonZero(eq.RegularMarketPrice),
		TrailingPE:              nonZero(eq.TrailingPE),
		EPSTrailingTwelveMonths: nonZero(eq.EpsTrailingTwelveMonths),
	}
}

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
