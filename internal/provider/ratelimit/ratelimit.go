package ratelimit

import (
	"context"
	"sync"
	"time"

	"portfoliodash/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between upstream calls,
// counting single and batch calls alike.
// Concurrent calls will wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	P        provider.QuoteProvider
	Interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) FetchOne(ctx context.Context, symbol string) (provider.Raw, error) {
	if err := m.wait(ctx); err != nil {
		return provider.Raw{}, err
	}
	defer m.touch()
	return m.P.FetchOne(ctx, symbol)
}

func (m *MinInterval) FetchMany(ctx context.Context, symbols []string) ([]provider.Raw, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	defer m.touch()
	return m.P.FetchMany(ctx, symbols)
}

func (m *MinInterval) wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	// simple gate: ensure at least Interval since last
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) touch() {
	if m.Interval <= 0 {
		return
	}
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}
