package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	// PollIntervalMs is advertised to dashboard clients.
	PollIntervalMs int `json:"poll_interval_ms"`
}

type Quotes struct {
	TTLMillis           int `json:"ttl_ms"`
	BatchChunkSize      int `json:"batch_chunk_size"`
	ChunkConcurrency    int `json:"chunk_concurrency"`
	FallbackConcurrency int `json:"fallback_concurrency"`
}

// Yahoo selects and tunes the upstream quote source.
// Kind is "finance-go" (default) or "http".
type Yahoo struct {
	Kind                  string `json:"kind"`
	Endpoint              string `json:"endpoint"`
	Crumb                 string `json:"crumb"`
	Cookie                string `json:"cookie"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type Portfolio struct {
	File     string `json:"file"`
	Currency string `json:"currency"`
}

type Warmer struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}

type Config struct {
	Server    Server    `json:"server"`
	Quotes    Quotes    `json:"quotes"`
	Yahoo     Yahoo     `json:"yahoo"`
	Portfolio Portfolio `json:"portfolio"`
	Warmer    Warmer    `json:"warmer"`
}

const (
	KindFinanceGo = "finance-go"
	KindHTTP      = "http"
)

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10, PollIntervalMs: 15000},
		Quotes: Quotes{
			TTLMillis:           60000,
			BatchChunkSize:      20,
			ChunkConcurrency:    2,
			FallbackConcurrency: 3,
		},
		Yahoo: Yahoo{
			Kind:                 KindFinanceGo,
			Endpoint:             "https://query1.finance.yahoo.com",
			MaxRequestsPerMinute: 120,
			Burst:                5,
		},
		Portfolio: Portfolio{Currency: "INR"},
		Warmer:    Warmer{Enabled: true, Schedule: "@every 15s"},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. A .env file in the working directory, when present,
// is loaded before environment overrides are applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := loadDotEnv(".env"); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// loadDotEnv never overrides variables already set in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", 1, &cfg.Server.RequestTimeoutSec)
	envInt("POLL_INTERVAL_MS", 1, &cfg.Server.PollIntervalMs)

	envInt("QUOTES_TTL_MS", 1, &cfg.Quotes.TTLMillis)
	envInt("QUOTES_BATCH_CHUNK_SIZE", 1, &cfg.Quotes.BatchChunkSize)
	envInt("QUOTES_CHUNK_CONCURRENCY", 1, &cfg.Quotes.ChunkConcurrency)
	envInt("QUOTES_FALLBACK_CONCURRENCY", 1, &cfg.Quotes.FallbackConcurrency)

	if v := os.Getenv("YAHOO_PROVIDER"); v != "" {
		cfg.Yahoo.Kind = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("YAHOO_ENDPOINT"); v != "" {
		cfg.Yahoo.Endpoint = v
	}
	if v := os.Getenv("YAHOO_CRUMB"); v != "" {
		cfg.Yahoo.Crumb = v
	}
	if v := os.Getenv("YAHOO_COOKIE"); v != "" {
		cfg.Yahoo.Cookie = v
	}
	envInt("YAHOO_MAX_RPM", 0, &cfg.Yahoo.MaxRequestsPerMinute)
	envInt("YAHOO_MIN_INTERVAL_SEC", 0, &cfg.Yahoo.MinRequestIntervalSec)
	envInt("YAHOO_BURST", 1, &cfg.Yahoo.Burst)

	if v := os.Getenv("PORTFOLIO_FILE"); v != "" {
		cfg.Portfolio.File = v
	}
	if v := os.Getenv("PORTFOLIO_CURRENCY"); v != "" {
		cfg.Portfolio.Currency = strings.ToUpper(v)
	}

	if v := os.Getenv("WARMER_ENABLED"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			cfg.Warmer.Enabled = true
		case "0", "false", "no", "n":
			cfg.Warmer.Enabled = false
		}
	}
	if v := os.Getenv("WARMER_SCHEDULE"); v != "" {
		cfg.Warmer.Schedule = v
	}
}

// envInt sets *dst from key when the value parses and is at least min.
func envInt(key string, min int, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err != nil {
		return
	}
	if x >= min {
		*dst = x
	}
}
