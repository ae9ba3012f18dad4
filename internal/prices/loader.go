package prices

import (
    "context"

    "golang.org/x/sync/singleflight"
)

// StockSource yields the stock snapshot. Implementations degrade
// internally (live -> cache -> hardcoded) and always return a snapshot.
type StockSource interface {
    Prices(ctx context.Context) Snapshot
}

// CryptoSource yields the preset crypto snapshot, possibly partial or
// empty, never failing.
type CryptoSource interface {
    Prices(ctx context.Context, forceRefresh bool) Snapshot
}

// Result pairs the two independent snapshots of one aggregate load.
type Result struct {
    Stock  Snapshot `json:"stock"`
    Crypto Snapshot `json:"crypto"`
}

// Loader coalesces concurrent aggregate loads: while a load is in
// flight every caller awaits the same one instead of starting another,
// so at most one aggregate fetch runs system-wide.
type Loader struct {
    stock  StockSource
    crypto CryptoSource

    sf singleflight.Group
}

func NewLoader(stock StockSource, crypto CryptoSource) *Loader {
    return &Loader{stock: stock, crypto: crypto}
}

// Load runs the stock and crypto sources concurrently and merges their
// independent results. The two fetches have no ordering dependency and
// a failure tier reached in one does not affect the other; each
// source's own chain ends in an unconditional tier, so the merged
// result always exists.
func (l *Loader) Load(ctx context.Context, forceRefresh bool) Result {
    v, _, _ := l.sf.Do("load", func() (any, error) {
        stockCh := make(chan Snapshot, 1)
        go func() { stockCh <- l.stock.Prices(ctx) }()
        crypto := l.crypto.Prices(ctx, forceRefresh)
        return Result{Stock: <-stockCh, Crypto: crypto}, nil
    })
    return v.(Result)
}
