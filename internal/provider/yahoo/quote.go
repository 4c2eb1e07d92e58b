package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"portfoliodash/internal/provider"
)

// ErrNotFound is returned by FetchOne when the response has no line for the symbol.
var ErrNotFound = errors.New("symbol not found")

type quoteResponse struct {
	QuoteResponse struct {
		Result []provider.Raw `json:"result"`
		Error  *apiError      `json:"error"`
	} `json:"quoteResponse"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// GetQuotes retrieves quotes for symbols in a single request.
// Unknown symbols are simply missing from the result.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]provider.Raw, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := maps.Clone(c.query)
	query.Set("symbols", strings.Join(symbols, ","))

	url := fmt.Sprintf("%s/v7/finance/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")

	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(symbols, ","))

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return nil, fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, string(b))
	}

	var body quoteResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding quote response: %w", err)
	}
	if e := body.QuoteResponse.Error; e != nil && len(body.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("provider error: code=%s msg=%q", e.Code, e.Description)
	}
	return body.QuoteResponse.Result, nil
}

func (c *Client) FetchMany(ctx context.Context, symbols []string) ([]provider.Raw, error) {
	return c.GetQuotes(ctx, symbols)
}

func (c *Client) FetchOne(ctx context.Context, symbol string) (provider.Raw, error) {
	qs, err := c.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return provider.Raw{}, err
	}
	want := provider.Normalize(symbol)
	for _, q := range qs {
		if provider.Normalize(q.Symbol) == want {
			return q, nil
		}
	}
	return provider.Raw{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
}
