package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrRateLimited reports an Alpha Vantage throttling notice. The free
// tier returns HTTP 200 with a "Note" payload when throttled, so this
// cannot be detected from the status code alone.
var ErrRateLimited = errors.New("alphavantage: rate limited")

// Quote is the current global quote for a symbol.
type Quote struct {
	Symbol string
	Price  float64
}

// GetGlobalQuote retrieves the GLOBAL_QUOTE for a symbol.
//
// The response is inspected for an explicit "Error Message" field, a
// "Note" rate-limit field, and the nested "Global Quote"."05. price"
// field; the first two, or an unparsable/non-positive price, fail the
// call.
func (c *AlphaVantageAPIClient) GetGlobalQuote(ctx context.Context, symbol string, opts ...AlphaVantageAPIClientOption) (Quote, error) {
	var override = &AlphaVantageAPIClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      c.query,
	}
	for _, opt := range opts {
		opt(override)
	}

	query := maps.Clone(override.query)
	query.Add("function", "GLOBAL_QUOTE")
	query.Add("symbol", symbol)

	url := fmt.Sprintf("%s/query?%s", override.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Quote{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusTooManyRequests:
		return Quote{}, ErrRateLimited

	default:
		return Quote{}, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Quote{}, fmt.Errorf("reading response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return Quote{}, fmt.Errorf("invalid JSON response: %s", truncate(body, 200))
	}

	if msg := gjson.GetBytes(body, "Error Message"); msg.Exists() {
		return Quote{}, fmt.Errorf("api error: %s", msg.String())
	}
	if note := gjson.GetBytes(body, "Note"); note.Exists() {
		return Quote{}, fmt.Errorf("%w: %s", ErrRateLimited, note.String())
	}

	price := gjson.GetBytes(body, `Global Quote.05\. price`)
	if !price.Exists() {
		return Quote{}, fmt.Errorf("invalid price data: %s", truncate(body, 200))
	}
	v := price.Float()
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return Quote{}, fmt.Errorf("invalid price data: %q", price.String())
	}

	return Quote{Symbol: strings.ToUpper(symbol), Price: v}, nil
}

// truncate keeps error strings readable when the upstream body is large.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
