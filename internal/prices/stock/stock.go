package stock

import (
    "context"
    "fmt"
    "log"
    "time"

    "github.com/tidwall/gjson"
    "golang.org/x/sync/errgroup"
    "valueconverter/internal/cache"
    "valueconverter/internal/httpx"
    "valueconverter/internal/prices"
)

// The two index-tracking symbols the converter projects into, and the
// hardcoded last-resort prices used when both the proxy and the local
// cache are unavailable.
const (
    SymbolVOO = "VOO"
    SymbolQQQ = "QQQ"

    FallbackVOO = 632
    FallbackQQQ = 620
)

// DefaultTTL bounds the local cache. The proxy holds the authoritative
// 24h cache; this one only avoids hammering it from a hot loop.
const DefaultTTL = 5 * time.Minute

// Source fetches VOO and QQQ through the stock proxy.
//
// Fallback chain: live proxy fetch -> local cache (5 min) -> hardcoded
// constants. The chain is total, so Prices always returns a snapshot
// covering both symbols.
type Source struct {
    client  *httpx.Client
    store   *cache.Store
    baseURL string // proxy base, e.g. http://localhost:3001
    ttl     time.Duration
    timeout time.Duration

    now func() time.Time
}

func New(hc *httpx.Client, store *cache.Store, baseURL string, ttl time.Duration) *Source {
    if ttl <= 0 { ttl = DefaultTTL }
    return &Source{
        client:  hc,
        store:   store,
        baseURL: baseURL,
        ttl:     ttl,
        timeout: httpx.StockProxyTimeout,
        now:     time.Now,
    }
}

// Prices returns the current stock snapshot. It never fails: the last
// tier of the chain is unconditional.
func (s *Source) Prices(ctx context.Context) prices.Snapshot {
    return prices.FirstOf(
        func() (prices.Snapshot, bool) { return s.live(ctx) },
        s.staleCache,
        s.hardcoded,
    )
}

// live fetches both symbols from the proxy in parallel. Both must
// succeed: a half-updated stock pair is worse than a coherent stale one.
func (s *Source) live(ctx context.Context) (prices.Snapshot, bool) {
    var voo, qqq float64
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() (err error) { voo, err = s.fetchOne(gctx, SymbolVOO); return err })
    g.Go(func() (err error) { qqq, err = s.fetchOne(gctx, SymbolQQQ); return err })
    if err := g.Wait(); err != nil {
        log.Printf("stock: live fetch failed: %v", err)
        return prices.Snapshot{}, false
    }

    p := map[string]float64{SymbolVOO: voo, SymbolQQQ: qqq}
    s.store.Write(cache.Key(cache.NSStockPrices), p)
    return prices.Snapshot{Prices: p, Source: prices.SourceRealtime, ObservedAt: s.now()}, true
}

func (s *Source) staleCache() (prices.Snapshot, bool) {
    e, ok := s.store.Read(cache.Key(cache.NSStockPrices), s.ttl)
    if !ok { return prices.Snapshot{}, false }
    var p map[string]float64
    if err := e.Decode(&p); err != nil || len(p) == 0 {
        return prices.Snapshot{}, false
    }
    return prices.Snapshot{Prices: p, Source: prices.SourceStaleCache, ObservedAt: e.Time()}, true
}

func (s *Source) hardcoded() (prices.Snapshot, bool) {
    p := map[string]float64{SymbolVOO: FallbackVOO, SymbolQQQ: FallbackQQQ}
    return prices.Snapshot{Prices: p, Source: prices.SourceFallback, ObservedAt: s.now()}, true
}

// fetchOne calls the proxy for one symbol and validates the response
// shape. A parse or shape mismatch is a fetch failure like any other.
func (s *Source) fetchOne(ctx context.Context, symbol string) (float64, error) {
    url := fmt.Sprintf("%s/api/stock/%s", s.baseURL, symbol)
    body, err := s.client.GetJSON(ctx, url, s.timeout)
    if err != nil { return 0, err }

    res := gjson.GetBytes(body, "price")
    if !res.Exists() {
        return 0, fmt.Errorf("unexpected response shape for %s: %s", symbol, truncate(body, 200))
    }
    price := res.Float()
    if !prices.Valid(price) {
        return 0, fmt.Errorf("invalid price for %s: %q", symbol, res.String())
    }
    return price, nil
}

func truncate(b []byte, n int) string {
    if len(b) <= n { return string(b) }
    return string(b[:n]) + "..."
}
