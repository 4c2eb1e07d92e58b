package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfoliodash/internal/provider"
	"portfoliodash/internal/provider/cache"
)

func f(v float64) *float64 { return &v }

// fakeProvider serves prices from a table and records every call.
type fakeProvider struct {
	mu        sync.Mutex
	prices    map[string]float64
	batchOmit map[string]bool // resolvable individually but omitted from batches
	failBatch func(chunk []string) bool
	failOne   map[string]bool
	extra     []provider.Raw // noise lines appended to every batch response
	delay     time.Duration
	hold      chan struct{}   // FetchOne for held symbols blocks until closed
	held      map[string]bool

	batchCalls [][]string
	oneCalls   []string
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchMany(_ context.Context, symbols []string) ([]provider.Raw, error) {
	p.mu.Lock()
	p.batchCalls = append(p.batchCalls, append([]string(nil), symbols...))
	p.mu.Unlock()
	if p.failBatch != nil && p.failBatch(symbols) {
		return nil, errors.New("batch unavailable")
	}
	var out []provider.Raw
	for _, s := range symbols {
		price, ok := p.prices[s]
		if !ok || p.batchOmit[s] {
			continue
		}
		out = append(out, provider.Raw{Symbol: s, RegularMarketPrice: f(price), TrailingPE: f(20)})
	}
	return append(out, p.extra...), nil
}

func (p *fakeProvider) FetchOne(_ context.Context, symbol string) (provider.Raw, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxFlight.Load()
		if n <= m || p.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	p.mu.Lock()
	p.oneCalls = append(p.oneCalls, symbol)
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.held[symbol] {
		<-p.hold
	}
	if p.failOne[symbol] {
		return provider.Raw{}, fmt.Errorf("no quote for %s", symbol)
	}
	price, ok := p.prices[symbol]
	if !ok {
		return provider.Raw{}, fmt.Errorf("unknown %s", symbol)
	}
	return provider.Raw{Symbol: symbol, RegularMarketPrice: f(price)}, nil
}

func (p *fakeProvider) calls() (batches int, singles int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batchCalls), len(p.oneCalls)
}

var quiet = log.New(io.Discard, "", 0)

func newRefresher(p provider.QuoteProvider, cfg Config) (*Refresher, *cache.Store) {
	cfg.Logger = quiet
	store := cache.New(time.Minute)
	return New(cfg, p, store), store
}

var t0 = time.Date(2025, 1, 2, 9, 15, 0, 0, time.UTC)

func TestRefresh_BatchMissFallsBackToSingle(t *testing.T) {
	p := &fakeProvider{
		prices:    map[string]float64{"AAA": 10, "BBB": 20},
		batchOmit: map[string]bool{"BBB": true},
	}
	r, _ := newRefresher(p, Config{ChunkSize: 20})

	got := r.Refresh(t.Context(), []string{"AAA", "BBB"}, t0)

	require.Len(t, got, 2)
	require.Equal(t, [][]string{{"AAA", "BBB"}}, p.batchCalls)
	require.Equal(t, []string{"BBB"}, p.oneCalls)

	require.False(t, got["AAA"].Cached)
	require.InDelta(t, 10, *got["AAA"].CMP, 0.0001)
	require.False(t, got["BBB"].Cached)
	require.False(t, got["BBB"].Error)
	require.InDelta(t, 20, *got["BBB"].CMP, 0.0001)
	require.Equal(t, t0, *got["BBB"].FetchedAt)
}

func TestRefresh_FreshEntriesSkipProvider(t *testing.T) {
	p := &fakeProvider{prices: map[string]float64{"AAA": 10}}
	r, store := newRefresher(p, Config{})
	store.Put("AAA", provider.Data{CMP: f(9)}, t0)

	got := r.Refresh(t.Context(), []string{"AAA"}, t0.Add(30*time.Second))

	batches, singles := p.calls()
	require.Zero(t, batches)
	require.Zero(t, singles)
	require.True(t, got["AAA"].Cached)
	require.InDelta(t, 9, *got["AAA"].CMP, 0.0001)
	require.Equal(t, t0, *got["AAA"].FetchedAt)
}

func TestRefresh_WriteThroughServesNextCycleFromCache(t *testing.T) {
	p := &fakeProvider{
		prices:    map[string]float64{"AAA": 10, "BBB": 20},
		batchOmit: map[string]bool{"BBB": true},
	}
	r, _ := newRefresher(p, Config{})

	first := r.Refresh(t.Context(), []string{"AAA", "BBB"}, t0)
	b1, s1 := p.calls()

	second := r.Refresh(t.Context(), []string{"AAA", "BBB"}, t0.Add(59*time.Second))
	b2, s2 := p.calls()

	require.Equal(t, b1, b2, "no batch calls within TTL")
	require.Equal(t, s1, s2, "no single calls within TTL")
	for _, s := range []string{"AAA", "BBB"} {
		require.True(t, second[s].Cached)
		require.Equal(t, *first[s].CMP, *second[s].CMP)
	}
}

func TestRefresh_ExpiredEntriesAreRefetched(t *testing.T) {
	p := &fakeProvider{prices: map[string]float64{"AAA": 11}}
	r, store := newRefresher(p, Config{})
	store.Put("AAA", provider.Data{CMP: f(9)}, t0)

	got := r.Refresh(t.Context(), []string{"AAA"}, t0.Add(time.Minute))

	require.Len(t, p.batchCalls, 1)
	require.False(t, got["AAA"].Cached)
	require.InDelta(t, 11, *got["AAA"].CMP, 0.0001)
}

func TestRefresh_ChunkFailureDoesNotDropSymbols(t *testing.T) {
	prices := map[string]float64{}
	var symbols []string
	for i := range 5 {
		s := fmt.Sprintf("S%d", i)
		prices[s] = float64(i + 1)
		symbols = append(symbols, s)
	}
	p := &fakeProvider{
		prices: prices,
		// the chunk holding S0 fails wholesale
		failBatch: func(chunk []string) bool { return chunk[0] == "S0" },
	}
	r, _ := newRefresher(p, Config{ChunkSize: 2, ChunkConcurrency: 1})

	got := r.Refresh(t.Context(), symbols, t0)

	require.Len(t, got, 5)
	require.Len(t, p.batchCalls, 3)
	require.ElementsMatch(t, []string{"S0", "S1"}, p.oneCalls)
	for _, s := range symbols {
		require.False(t, got[s].Error, s)
		require.NotNil(t, got[s].CMP, s)
	}
}

func TestRefresh_FallbackFailureLeavesCacheUntouched(t *testing.T) {
	p := &fakeProvider{
		prices:    map[string]float64{"AAA": 10},
		failBatch: func([]string) bool { return true },
		failOne:   map[string]bool{"AAA": true},
	}
	r, store := newRefresher(p, Config{})
	prior := store.Put("AAA", provider.Data{CMP: f(9), PERatio: f(18), Earnings: f(0.5)}, t0)

	got := r.Refresh(t.Context(), []string{"AAA"}, t0.Add(2*time.Minute))

	res := got["AAA"]
	require.True(t, res.Error)
	require.False(t, res.Cached)
	require.Nil(t, res.CMP)
	require.Nil(t, res.PERatio)
	require.Nil(t, res.Earnings)
	require.Nil(t, res.FetchedAt)

	after, ok := store.Get("AAA")
	require.True(t, ok)
	require.Equal(t, prior, after)
}

func TestRefresh_FallbackConcurrencyBound(t *testing.T) {
	prices := map[string]float64{}
	var symbols []string
	for i := range 12 {
		s := fmt.Sprintf("S%02d", i)
		prices[s] = 1
		symbols = append(symbols, s)
	}
	p := &fakeProvider{
		prices:    prices,
		failBatch: func([]string) bool { return true },
		delay:     10 * time.Millisecond,
	}
	r, _ := newRefresher(p, Config{FallbackConcurrency: 3})

	got := r.Refresh(t.Context(), symbols, t0)

	require.Len(t, got, 12)
	require.Len(t, p.oneCalls, 12)
	require.LessOrEqual(t, p.maxFlight.Load(), int32(3))
	require.Positive(t, p.maxFlight.Load())
}

func TestRefresh_UnrequestedProviderSymbolsAreCachedNotReturned(t *testing.T) {
	p := &fakeProvider{
		prices: map[string]float64{"AAA": 10},
		extra:  []provider.Raw{{Symbol: "zzz", RegularMarketPrice: f(1)}, {Symbol: ""}},
	}
	r, store := newRefresher(p, Config{})

	got := r.Refresh(t.Context(), []string{"AAA"}, t0)

	require.Len(t, got, 1)
	require.Contains(t, got, "AAA")
	require.True(t, store.IsFresh("ZZZ", t0))
	require.Equal(t, 2, store.Len())
}

func TestRefresh_ConcurrentCyclesShareFallbackCalls(t *testing.T) {
	p := &fakeProvider{
		prices:    map[string]float64{"AAA": 10},
		failBatch: func([]string) bool { return true },
		delay:     100 * time.Millisecond,
	}
	r, _ := newRefresher(p, Config{})

	var wg sync.WaitGroup
	results := make([]map[string]Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Refresh(t.Context(), []string{"AAA"}, t0)
		}()
	}
	wg.Wait()

	for _, res := range results {
		require.False(t, res["AAA"].Error)
	}
	_, singles := p.calls()
	require.Less(t, singles, 4)
}

func TestRefresh_CancelledLeaderDoesNotFailJoinedCaller(t *testing.T) {
	// Arrange: B1..B3 occupy every fallback slot until hold is closed.
	p := &fakeProvider{
		prices:    map[string]float64{"AAA": 10, "B1": 1, "B2": 2, "B3": 3},
		failBatch: func([]string) bool { return true },
		hold:      make(chan struct{}),
		held:      map[string]bool{"B1": true, "B2": true, "B3": true},
	}
	r, _ := newRefresher(p, Config{FallbackConcurrency: 3})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Refresh(context.Background(), []string{"B1", "B2", "B3"}, t0)
	}()
	require.Eventually(t, func() bool { return p.inFlight.Load() == 3 }, time.Second, 5*time.Millisecond)

	batches := func() int { n, _ := p.calls(); return n }

	// the first caller starts the shared AAA fetch and waits for a slot
	leaderCtx, cancelLeader := context.WithCancel(t.Context())
	leaderDone := make(chan map[string]Result, 1)
	go func() { leaderDone <- r.Refresh(leaderCtx, []string{"AAA"}, t0) }()
	require.Eventually(t, func() bool { return batches() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// a second caller with a live context joins it
	followerDone := make(chan map[string]Result, 1)
	go func() { followerDone <- r.Refresh(context.Background(), []string{"AAA"}, t0) }()
	require.Eventually(t, func() bool { return batches() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// Act
	cancelLeader()
	leader := <-leaderDone
	close(p.hold)
	follower := <-followerDone
	wg.Wait()

	// Assert
	require.True(t, leader["AAA"].Error)
	require.False(t, follower["AAA"].Error)
	require.InDelta(t, 10, *follower["AAA"].CMP, 0.0001)
	require.LessOrEqual(t, p.maxFlight.Load(), int32(3))
}

func TestResult_JSONFetchedAtIsEpochMillis(t *testing.T) {
	at := t0
	b, err := json.Marshal(Result{CMP: f(10), FetchedAt: &at})
	require.NoError(t, err)
	require.JSONEq(t, fmt.Sprintf(`{"cmp":10,"peRatio":null,"earnings":null,"cached":false,"fetchedAt":%d}`, t0.UnixMilli()), string(b))

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, t0.Equal(*back.FetchedAt))

	b, err = json.Marshal(Result{Error: true})
	require.NoError(t, err)
	require.NotContains(t, string(b), "fetchedAt")
}

func TestChunkStrings(t *testing.T) {
	require.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunkStrings([]string{"a", "b", "c"}, 2))
	require.Equal(t, [][]string{{"a"}}, chunkStrings([]string{"a"}, 20))
}

func TestGate_BlocksBeyondCapacity(t *testing.T) {
	g := NewGate(1)
	require.Equal(t, 1, g.Cap())
	require.NoError(t, g.Acquire(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, g.Acquire(ctx), context.DeadlineExceeded)

	g.Release()
	require.NoError(t, g.Acquire(t.Context()))
	g.Release()
}
