package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfoliodash/internal/app"
	"portfoliodash/internal/config"
	"portfoliodash/internal/portfolio"
	"portfoliodash/internal/warmer"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.Default()

	a, err := app.New(cfg, nil, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	log.Printf("provider %s, %d holdings, quote ttl %dms", a.Provider.Name(), len(a.Holdings), cfg.Quotes.TTLMillis)

	var w *warmer.Warmer
	symbols := portfolio.Symbols(a.Holdings)
	if cfg.Warmer.Enabled && len(symbols) == 0 {
		log.Println("warmer: no holdings to track; not scheduled")
	}
	if cfg.Warmer.Enabled && len(symbols) > 0 {
		w, err = warmer.New(cfg.Warmer.Schedule, a.Quotes, symbols, logger)
		if err != nil {
			log.Fatalf("warmer: %v", err)
		}
		go w.Run(context.Background())
		w.Start()
	}

	s := &server{
		quotes:         a.Quotes,
		holdings:       a.Holdings,
		currency:       cfg.Portfolio.Currency,
		pollIntervalMs: cfg.Server.PollIntervalMs,
		timeout:        time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
		log:            logger,
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if w != nil {
		w.Stop(shutdownCtx)
	}
	_ = srv.Shutdown(shutdownCtx)
}
