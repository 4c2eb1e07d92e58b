// Package app assembles the quote pipeline from configuration.
package app

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"portfoliodash/internal/config"
	"portfoliodash/internal/httpx"
	"portfoliodash/internal/portfolio"
	"portfoliodash/internal/provider"
	"portfoliodash/internal/provider/cache"
	"portfoliodash/internal/provider/financego"
	"portfoliodash/internal/provider/ratelimit"
	"portfoliodash/internal/provider/yahoo"
	"portfoliodash/internal/quotes"
	"portfoliodash/internal/refresh"
)

type App struct {
	Config   config.Config
	Provider provider.QuoteProvider
	Store    *cache.Store
	Quotes   *quotes.Service
	Holdings []portfolio.Holding
}

// New builds the pipeline. A nil p selects the upstream named by cfg.Yahoo.
func New(cfg config.Config, p provider.QuoteProvider, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	if p == nil {
		var err error
		if p, err = NewProvider(cfg); err != nil {
			return nil, err
		}
	}
	holdings, err := portfolio.Load(cfg.Portfolio.File)
	if err != nil {
		return nil, err
	}

	store := cache.New(time.Duration(cfg.Quotes.TTLMillis) * time.Millisecond)
	r := refresh.New(refresh.Config{
		ChunkSize:           cfg.Quotes.BatchChunkSize,
		ChunkConcurrency:    cfg.Quotes.ChunkConcurrency,
		FallbackConcurrency: cfg.Quotes.FallbackConcurrency,
		Logger:              logger,
	}, p, store)

	return &App{
		Config:   cfg,
		Provider: p,
		Store:    store,
		Quotes:   quotes.New(p, r),
		Holdings: holdings,
	}, nil
}

// NewProvider builds the configured upstream wrapped in its rate limiter.
func NewProvider(cfg config.Config) (provider.QuoteProvider, error) {
	var p provider.QuoteProvider
	switch cfg.Yahoo.Kind {
	case "", config.KindFinanceGo:
		p = financego.New(financego.Config{Name: "Yahoo"}, nil)
	case config.KindHTTP:
		hc := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
		if cfg.Yahoo.Cookie != "" {
			hc.Headers = map[string]string{"Cookie": cfg.Yahoo.Cookie}
		}
		opts := []yahoo.ClientOption{
			yahoo.WithHTTPClient(hc),
			yahoo.WithHeader(http.Header{"Accept": []string{"application/json"}}),
			yahoo.WithCrumb(cfg.Yahoo.Crumb),
		}
		if cfg.Yahoo.Endpoint != "" {
			opts = append(opts, yahoo.WithBaseURL(cfg.Yahoo.Endpoint))
		}
		p = yahoo.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unknown yahoo provider kind %q", cfg.Yahoo.Kind)
	}

	// Prefer token bucket with burst if RPM is set, otherwise use min-interval
	if cfg.Yahoo.MaxRequestsPerMinute > 0 {
		burst := cfg.Yahoo.Burst
		if burst <= 0 {
			burst = 1
		}
		p = ratelimit.PerMinute(p, cfg.Yahoo.MaxRequestsPerMinute, burst)
	} else if cfg.Yahoo.MinRequestIntervalSec > 0 {
		p = &ratelimit.MinInterval{P: p, Interval: time.Duration(cfg.Yahoo.MinRequestIntervalSec) * time.Second}
	}
	return p, nil
}
