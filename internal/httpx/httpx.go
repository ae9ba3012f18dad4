package httpx

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net"
    "net/http"
    "time"
)

// Default per-call deadlines. Price and search lookups get the short
// deadline; the stock proxy round-trip gets a longer one because the
// server may have to reach its own upstream first.
const (
    DefaultLookupTimeout = 8 * time.Second
    StockProxyTimeout    = 10 * time.Second
)

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
}

func New(timeout time.Duration) *Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          200,
        MaxIdleConnsPerHost:   100,
        MaxConnsPerHost:       100,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 5 * time.Second,
    }
    return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "value-converter/1.0"}
}

func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    return c.HTTP.Do(req)
}

// GetJSON issues a GET with a hard deadline and returns the raw body.
// The deadline always cancels the underlying request when it fires, so
// a stuck upstream cannot hold the caller past the timeout. Non-2xx
// status is an error; bodies are capped to keep error strings short.
func (c *Client) GetJSON(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
    if timeout <= 0 { timeout = DefaultLookupTimeout }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
    if err != nil { return nil, err }
    req.Header.Set("Accept", "application/json")
    resp, err := c.Do(ctx, req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
        return nil, fmt.Errorf("GET %s -> %d: %s", url, resp.StatusCode, string(b))
    }
    body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
    if err != nil { return nil, fmt.Errorf("read body: %w", err) }
    return body, nil
}

// DecodeJSON unmarshals the few responses we map onto structs rather
// than walking with gjson.
func DecodeJSON(body []byte, v any) error {
    if err := json.Unmarshal(body, v); err != nil {
        return fmt.Errorf("decode: %w", err)
    }
    return nil
}
