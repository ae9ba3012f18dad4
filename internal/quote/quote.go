package quote

import (
    "context"
    "log"
    "sync"
    "time"

    "golang.org/x/sync/singleflight"
    "valueconverter/internal/quote/alphavantage"
)

// DefaultTTL is how long an upstream stock price stays authoritative.
// The upstream free tier allows very few calls per day, so this is
// deliberately long.
const DefaultTTL = 24 * time.Hour

// Client is the upstream surface the cached source needs.
type Client interface {
    GetGlobalQuote(ctx context.Context, symbol string, opts ...alphavantage.AlphaVantageAPIClientOption) (alphavantage.Quote, error)
}

// Source serves stock prices out of a process-wide cache, refreshing
// from the upstream quote API when an entry ages past the TTL.
//
// Degradation policy: a refresh failure falls back to the previous
// cached price regardless of its age; the call only fails when no
// price has ever been obtained for the symbol. Concurrent refreshes
// for the same symbol are coalesced so the upstream sees one call.
type Source struct {
    client Client
    ttl    time.Duration

    mu      sync.RWMutex
    entries map[string]entry

    // coalesce concurrent upstream fetches per symbol
    sf singleflight.Group

    now func() time.Time
}

type entry struct {
    price      float64
    lastUpdate time.Time
}

func NewSource(c Client, ttl time.Duration) *Source {
    if ttl <= 0 { ttl = DefaultTTL }
    return &Source{client: c, ttl: ttl, entries: make(map[string]entry), now: time.Now}
}

// Price returns the price for symbol, refreshing from upstream only
// when the cached entry is older than the TTL.
func (s *Source) Price(ctx context.Context, symbol string) (float64, error) {
    now := s.now()

    s.mu.RLock()
    e, ok := s.entries[symbol]
    s.mu.RUnlock()
    if ok && now.Sub(e.lastUpdate) < s.ttl {
        return e.price, nil
    }

    v, err, _ := s.sf.Do(symbol, func() (any, error) {
        // Re-check under the flight: a joiner may arrive just after a
        // previous flight already refreshed the entry.
        s.mu.RLock()
        e, ok := s.entries[symbol]
        s.mu.RUnlock()
        if ok && s.now().Sub(e.lastUpdate) < s.ttl {
            return e.price, nil
        }

        q, err := s.client.GetGlobalQuote(ctx, symbol)
        if err != nil {
            if ok {
                // Stale beats nothing. Keep the old entry so the next
                // call retries upstream instead of trusting it fresh.
                log.Printf("quote: upstream failed for %s, serving stale price %.2f: %v", symbol, e.price, err)
                return e.price, nil
            }
            return nil, err
        }

        s.mu.Lock()
        s.entries[symbol] = entry{price: q.Price, lastUpdate: s.now()}
        s.mu.Unlock()
        return q.Price, nil
    })
    if err != nil {
        return 0, err
    }
    return v.(float64), nil
}
