package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"portfoliodash/internal/aggregate"
	"portfoliodash/internal/portfolio"
	"portfoliodash/internal/quotes"
	"portfoliodash/internal/refresh"
)

const maxSymbols = 1000

type server struct {
	quotes         *quotes.Service
	holdings       []portfolio.Holding
	currency       string
	pollIntervalMs int
	timeout        time.Duration
	log            *log.Logger
}

type portfolioResponse struct {
	Results map[string]refresh.Result `json:"results"`
}

type summaryResponse struct {
	aggregate.Summary
	PollIntervalMs int `json:"pollIntervalMs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/portfolio", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleGetPortfolio(w, r)
		case http.MethodPost:
			s.handlePostPortfolio(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
	mux.HandleFunc("/api/portfolio/summary", s.onlyGet(s.handleSummary))
	mux.HandleFunc("/api/quote", s.onlyGet(s.handleQuote))

	return withRequestID(s.log, withJSONHeaders(withGzip(recoverPanic(s.log, limitBody(mux)))))
}

func (s *server) onlyGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	}
}

func (s *server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("symbols")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "missing symbols query param")
		return
	}
	s.writePortfolio(w, r, strings.Split(q, ","))
}

type postBody struct {
	Symbols []string `json:"symbols"`
}

func (s *server) handlePostPortfolio(w http.ResponseWriter, r *http.Request) {
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.writePortfolio(w, r, b.Symbols)
}

func (s *server) writePortfolio(w http.ResponseWriter, r *http.Request, symbols []string) {
	if len(symbols) > maxSymbols {
		writeError(w, http.StatusBadRequest, "too many symbols (max 1000)")
		return
	}
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	results, err := s.quotes.GetQuotes(ctx, symbols)
	if errors.Is(err, quotes.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, "symbols cannot be empty")
		return
	}
	if err != nil {
		s.log.Printf("[%s] portfolio: %v", requestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "failed to refresh quotes")
		return
	}
	writeJSON(w, http.StatusOK, portfolioResponse{Results: results})
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	q, err := s.quotes.GetQuote(ctx, symbol)
	switch {
	case errors.Is(err, quotes.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Symbol is required")
	case err != nil:
		s.log.Printf("[%s] quote: %v", requestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stock data")
	default:
		writeJSON(w, http.StatusOK, q)
	}
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r.Context())
	defer cancel()

	var results map[string]refresh.Result
	if symbols := portfolio.Symbols(s.holdings); len(symbols) > 0 {
		var err error
		results, err = s.quotes.GetQuotes(ctx, symbols)
		if err != nil {
			s.log.Printf("[%s] summary: %v", requestID(r.Context()), err)
			writeError(w, http.StatusInternalServerError, "failed to refresh quotes")
			return
		}
	}
	sum := aggregate.BySector(s.holdings, results, s.currency, time.Now().UTC())
	writeJSON(w, http.StatusOK, summaryResponse{Summary: sum, PollIntervalMs: s.pollIntervalMs})
}

func (s *server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
