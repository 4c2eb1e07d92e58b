// Package refresh resolves a symbol set against the quote cache with as few
// upstream calls as possible: cache hits first, then chunked batch calls,
// then gated per-symbol retries for whatever the batches left unresolved.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"portfoliodash/internal/provider"
	"portfoliodash/internal/provider/cache"
)

const (
	DefaultChunkSize           = 20
	DefaultChunkConcurrency    = 2
	DefaultFallbackConcurrency = 3
)

// Result is the per-symbol outcome of one refresh cycle.
// When Error is set the data fields are nil and FetchedAt is nil.
type Result struct {
	Symbol    string     `json:"-"`
	CMP       *float64   `json:"cmp"`
	PERatio   *float64   `json:"peRatio"`
	Earnings  *float64   `json:"earnings"`
	Cached    bool       `json:"cached"`
	FetchedAt *time.Time `json:"-"`
	Error     bool       `json:"error,omitempty"`
}

// MarshalJSON writes FetchedAt as epoch milliseconds, the form the dashboard
// compares against its own clock.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	var at *int64
	if r.FetchedAt != nil {
		ms := r.FetchedAt.UnixMilli()
		at = &ms
	}
	return json.Marshal(struct {
		alias
		FetchedAt *int64 `json:"fetchedAt,omitempty"`
	}{alias(r), at})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	type alias Result
	aux := struct {
		*alias
		FetchedAt *int64 `json:"fetchedAt"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.FetchedAt != nil {
		at := time.UnixMilli(*aux.FetchedAt).UTC()
		r.FetchedAt = &at
	}
	return nil
}

func fromEntry(symbol string, e cache.Entry, cached bool) Result {
	at := e.FetchedAt
	return Result{
		Symbol:    symbol,
		CMP:       e.Data.CMP,
		PERatio:   e.Data.PERatio,
		Earnings:  e.Data.Earnings,
		Cached:    cached,
		FetchedAt: &at,
	}
}

type Config struct {
	ChunkSize           int
	ChunkConcurrency    int
	FallbackConcurrency int
	Logger              *log.Logger
}

// Refresher is the batch refresh orchestrator.
type Refresher struct {
	p     provider.QuoteProvider
	store *cache.Store
	cfg   Config
	gate  *Gate
	log   *log.Logger

	// coalesce concurrent fallback fetches of the same symbol
	sf singleflight.Group
}

func New(cfg Config, p provider.QuoteProvider, store *cache.Store) *Refresher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = DefaultChunkConcurrency
	}
	if cfg.FallbackConcurrency <= 0 {
		cfg.FallbackConcurrency = DefaultFallbackConcurrency
	}
	lg := cfg.Logger
	if lg == nil {
		lg = log.Default()
	}
	return &Refresher{
		p:     p,
		store: store,
		cfg:   cfg,
		gate:  NewGate(cfg.FallbackConcurrency),
		log:   lg,
	}
}

// Refresh returns one result per symbol. Symbols must already be normalized
// and distinct. now is the single timestamp used for every freshness
// decision and cache write in this cycle.
func (r *Refresher) Refresh(ctx context.Context, symbols []string, now time.Time) map[string]Result {
	results := make(map[string]Result, len(symbols))

	// 1) fresh cache hits
	stale := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if e, ok := r.store.Get(s); ok && now.Before(e.ExpiresAt) {
			results[s] = fromEntry(s, e, true)
			continue
		}
		stale = append(stale, s)
	}
	if len(stale) == 0 {
		return results
	}

	// 2) chunked batch calls
	for s, res := range r.fetchBatches(ctx, stale, now) {
		results[s] = res
	}

	// 3) per-symbol fallback for whatever the batches missed
	missing := make([]string, 0, len(stale))
	for _, s := range stale {
		if _, ok := results[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) == 0 {
		return results
	}
	for s, res := range r.fetchIndividually(ctx, missing, now) {
		results[s] = res
	}
	return results
}

// fetchBatches issues one FetchMany per chunk. A failed chunk is logged and
// leaves its symbols unresolved. Items for symbols that were not requested are
// cached under the provider's own symbol but not returned.
func (r *Refresher) fetchBatches(ctx context.Context, stale []string, now time.Time) map[string]Result {
	wanted := make(map[string]struct{}, len(stale))
	for _, s := range stale {
		wanted[s] = struct{}{}
	}

	var mu sync.Mutex
	out := make(map[string]Result, len(stale))

	var g errgroup.Group
	g.SetLimit(r.cfg.ChunkConcurrency)
	for _, chunk := range chunkStrings(stale, r.cfg.ChunkSize) {
		g.Go(func() error {
			items, err := r.p.FetchMany(ctx, chunk)
			if err != nil {
				r.log.Printf("refresh: %s batch of %d failed, falling back per symbol: %v", r.p.Name(), len(chunk), err)
				return nil
			}
			for _, it := range items {
				sym := provider.Normalize(it.Symbol)
				if sym == "" {
					continue
				}
				e := r.store.Put(sym, it.Data(), now)
				if _, ok := wanted[sym]; !ok {
					continue
				}
				mu.Lock()
				out[sym] = fromEntry(sym, e, false)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetchIndividually calls FetchOne for each symbol with at most
// FallbackConcurrency calls in flight across all refreshes.
func (r *Refresher) fetchIndividually(ctx context.Context, missing []string, now time.Time) map[string]Result {
	var mu sync.Mutex
	out := make(map[string]Result, len(missing))

	var wg sync.WaitGroup
	for _, s := range missing {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.fetchOne(ctx, s, now)
			mu.Lock()
			out[s] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (r *Refresher) fetchOne(ctx context.Context, symbol string, now time.Time) Result {
	e, err := r.fetchShared(ctx, symbol, now)
	if err != nil && ctx.Err() == nil && isContextErr(err) {
		// the flight we joined was cancelled by its leader; ours is still live
		e, err = r.fetchShared(ctx, symbol, now)
	}
	if err != nil {
		r.log.Printf("refresh: %s quote %s failed: %v", r.p.Name(), symbol, err)
		return Result{Symbol: symbol, Error: true}
	}
	return fromEntry(symbol, e, false)
}

// fetchShared runs at most one gated FetchOne per symbol at a time. The flight
// runs under the context of whichever caller started it.
func (r *Refresher) fetchShared(ctx context.Context, symbol string, now time.Time) (cache.Entry, error) {
	v, err, _ := r.sf.Do(symbol, func() (any, error) {
		if err := r.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		defer r.gate.Release()

		raw, err := r.p.FetchOne(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return r.store.Put(symbol, raw.Data(), now), nil
	})
	if err != nil {
		return cache.Entry{}, err
	}
	return v.(cache.Entry), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func chunkStrings(in []string, size int) [][]string {
	if size <= 0 || len(in) == 0 {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := i + size
		if j > len(in) {
			j = len(in)
		}
		out = append(out, in[i:j])
	}
	return out
}
