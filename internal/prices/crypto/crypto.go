package crypto

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/tidwall/gjson"
    "valueconverter/internal/cache"
    "valueconverter/internal/httpx"
    "valueconverter/internal/prices"
)

// TickerIDs maps the preset symbols to their CoinPaprika ticker ids.
var TickerIDs = map[string]string{
    "BTC": "btc-bitcoin",
    "ETH": "eth-ethereum",
    "SOL": "sol-solana",
    "BNB": "bnb-bnb",
    "OKB": "okb-okb",
}

const (
    DefaultBaseURL = "https://api.coinpaprika.com/v1"
    DefaultTTL     = 3 * time.Minute
)

// Source fetches the preset crypto prices from CoinPaprika.
//
// The five per-symbol fetches run concurrently and are evaluated
// independently: a failed symbol is logged and omitted, never aborting
// the others. This is the one source that deliberately returns partial
// results instead of all-or-nothing.
type Source struct {
    client  *httpx.Client
    store   *cache.Store
    baseURL string
    ttl     time.Duration
    timeout time.Duration

    now func() time.Time
}

func New(hc *httpx.Client, store *cache.Store, baseURL string, ttl time.Duration) *Source {
    if baseURL == "" { baseURL = DefaultBaseURL }
    if ttl <= 0 { ttl = DefaultTTL }
    return &Source{
        client:  hc,
        store:   store,
        baseURL: baseURL,
        ttl:     ttl,
        timeout: httpx.DefaultLookupTimeout,
        now:     time.Now,
    }
}

// Prices returns the preset crypto snapshot. With forceRefresh the
// fresh-cache tier is skipped and upstream is consulted directly.
// An empty mapping is a valid terminal state meaning "no prices
// available", not an error.
func (s *Source) Prices(ctx context.Context, forceRefresh bool) prices.Snapshot {
    steps := []prices.Step{
        func() (prices.Snapshot, bool) { return s.live(ctx) },
        s.staleCache,
        s.empty,
    }
    if !forceRefresh {
        steps = append([]prices.Step{s.freshCache}, steps...)
    }
    return prices.FirstOf(steps...)
}

func (s *Source) freshCache() (prices.Snapshot, bool) {
    e, ok := s.store.Read(cache.Key(cache.NSPresetCryptoPrices), s.ttl)
    if !ok { return prices.Snapshot{}, false }
    var p map[string]float64
    if err := e.Decode(&p); err != nil || len(p) == 0 {
        return prices.Snapshot{}, false
    }
    return prices.Snapshot{Prices: p, Source: prices.SourceCache, ObservedAt: e.Time()}, true
}

// live fans out one fetch per symbol and assembles whatever succeeded.
func (s *Source) live(ctx context.Context) (prices.Snapshot, bool) {
    type result struct {
        symbol string
        price  float64
        err    error
    }
    ch := make(chan result, len(TickerIDs))
    for symbol, id := range TickerIDs {
        symbol, id := symbol, id
        go func() {
            price, err := s.fetchUSDPrice(ctx, symbol, id)
            ch <- result{symbol: symbol, price: price, err: err}
        }()
    }

    p := make(map[string]float64, len(TickerIDs))
    for range TickerIDs {
        r := <-ch
        if r.err != nil {
            log.Printf("crypto: fetch %s failed: %v", r.symbol, r.err)
            continue
        }
        p[r.symbol] = r.price
    }

    if len(p) == 0 {
        return prices.Snapshot{}, false
    }
    s.store.Write(cache.Key(cache.NSPresetCryptoPrices), p)
    return prices.Snapshot{Prices: p, Source: prices.SourceRealtime, ObservedAt: s.now()}, true
}

func (s *Source) staleCache() (prices.Snapshot, bool) {
    e, ok := s.store.Read(cache.Key(cache.NSPresetCryptoPrices), cache.Unbounded)
    if !ok { return prices.Snapshot{}, false }
    var p map[string]float64
    if err := e.Decode(&p); err != nil || len(p) == 0 {
        return prices.Snapshot{}, false
    }
    return prices.Snapshot{Prices: p, Source: prices.SourceStaleCache, ObservedAt: e.Time()}, true
}

// empty is the terminal tier: no live data, no cache of any age.
// Callers must treat the empty mapping as "no prices available".
func (s *Source) empty() (prices.Snapshot, bool) {
    return prices.Snapshot{Prices: map[string]float64{}, Source: prices.SourceRealtime, ObservedAt: s.now()}, true
}

func (s *Source) fetchUSDPrice(ctx context.Context, symbol, id string) (float64, error) {
    url := fmt.Sprintf("%s/tickers/%s", s.baseURL, id)
    body, err := s.client.GetJSON(ctx, url, s.timeout)
    if err != nil { return 0, err }

    res := gjson.GetBytes(body, "quotes.USD.price")
    if !res.Exists() {
        return 0, fmt.Errorf("missing USD price for %s", symbol)
    }
    price := res.Float()
    if !prices.Valid(price) {
        return 0, fmt.Errorf("invalid USD price for %s: %q", symbol, res.String())
    }
    return price, nil
}
