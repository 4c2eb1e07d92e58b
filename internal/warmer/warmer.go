// Package warmer keeps the tracked portfolio's quotes warm in the cache so
// dashboard polls are served without waiting on the upstream.
package warmer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"portfoliodash/internal/refresh"
)

const DefaultTimeout = 10 * time.Second

// Refresher is the part of the quote service the warmer drives.
type Refresher interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]refresh.Result, error)
}

// Stats summarizes one warm run.
type Stats struct {
	Fresh  int
	Cached int
	Errors int
}

type Warmer struct {
	svc     Refresher
	symbols []string
	timeout time.Duration
	log     *log.Logger
	cron    *cron.Cron
}

// New schedules a refresh of symbols on schedule, a cron spec or a
// descriptor such as "@every 15s". Nothing runs until Start.
func New(schedule string, svc Refresher, symbols []string, logger *log.Logger) (*Warmer, error) {
	if logger == nil {
		logger = log.Default()
	}
	w := &Warmer{svc: svc, symbols: symbols, timeout: DefaultTimeout, log: logger}
	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	if _, err := w.cron.AddFunc(schedule, func() { w.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("warmer schedule %q: %w", schedule, err)
	}
	return w, nil
}

func (w *Warmer) Start() { w.cron.Start() }

// Stop halts scheduling and waits for a running refresh, bounded by ctx.
func (w *Warmer) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Run performs one refresh cycle. With no symbols to track it does nothing.
func (w *Warmer) Run(ctx context.Context) Stats {
	if len(w.symbols) == 0 {
		return Stats{}
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	res, err := w.svc.GetQuotes(ctx, w.symbols)
	if err != nil {
		w.log.Printf("warmer: refresh failed: %v", err)
		return Stats{}
	}
	var st Stats
	for _, r := range res {
		switch {
		case r.Error:
			st.Errors++
		case r.Cached:
			st.Cached++
		default:
			st.Fresh++
		}
	}
	w.log.Printf("warmer: %d symbols in %s (fresh=%d cached=%d errors=%d)",
		len(res), time.Since(start).Round(time.Millisecond), st.Fresh, st.Cached, st.Errors)
	return st
}
