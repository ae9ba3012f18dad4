package prices

import (
    "context"
    "sync"
    "sync/atomic"
    "testing"
    "time"
)

type fakeStock struct {
    calls   atomic.Int32
    snap    Snapshot
    started chan struct{}
    release chan struct{}
}

func (f *fakeStock) Prices(ctx context.Context) Snapshot {
    f.calls.Add(1)
    if f.started != nil { f.started <- struct{}{} }
    if f.release != nil { <-f.release }
    return f.snap
}

type fakeCrypto struct {
    calls atomic.Int32
    snap  Snapshot
    force atomic.Bool
}

func (f *fakeCrypto) Prices(ctx context.Context, forceRefresh bool) Snapshot {
    f.calls.Add(1)
    f.force.Store(forceRefresh)
    return f.snap
}

func TestLoad_MergesIndependentResults(t *testing.T) {
    stock := &fakeStock{snap: Snapshot{
        Prices: map[string]float64{"VOO": 632, "QQQ": 620},
        Source: SourceFallback,
    }}
    crypto := &fakeCrypto{snap: Snapshot{
        Prices: map[string]float64{"BTC": 50000},
        Source: SourceRealtime,
    }}

    l := NewLoader(stock, crypto)
    res := l.Load(context.Background(), true)

    // One source degrading to its last tier does not taint the other.
    if res.Stock.Source != SourceFallback || res.Crypto.Source != SourceRealtime {
        t.Fatalf("unexpected sources: stock=%s crypto=%s", res.Stock.Source, res.Crypto.Source)
    }
    if res.Stock.Prices["VOO"] != 632 || res.Crypto.Prices["BTC"] != 50000 {
        t.Fatalf("unexpected merge: %+v", res)
    }
    if !crypto.force.Load() {
        t.Fatal("forceRefresh must reach the crypto source")
    }
}

func TestLoad_CoalescesConcurrentCallers(t *testing.T) {
    stock := &fakeStock{
        snap:    Snapshot{Prices: map[string]float64{"VOO": 632.6}, Source: SourceRealtime},
        started: make(chan struct{}, 1),
        release: make(chan struct{}),
    }
    crypto := &fakeCrypto{snap: Snapshot{Prices: map[string]float64{}, Source: SourceRealtime}}
    l := NewLoader(stock, crypto)

    const callers = 6
    results := make([]Result, callers)
    var wg sync.WaitGroup

    wg.Add(1)
    go func() {
        defer wg.Done()
        results[0] = l.Load(context.Background(), false)
    }()
    <-stock.started // aggregate load is in flight

    for i := 1; i < callers; i++ {
        i := i
        wg.Add(1)
        go func() {
            defer wg.Done()
            results[i] = l.Load(context.Background(), false)
        }()
    }
    time.Sleep(50 * time.Millisecond)
    close(stock.release)
    wg.Wait()

    if got := stock.calls.Load(); got != 1 {
        t.Fatalf("want exactly one aggregate fetch across %d callers, got %d", callers, got)
    }
    for i, r := range results {
        if r.Stock.Prices["VOO"] != 632.6 {
            t.Fatalf("caller %d got a different result: %+v", i, r)
        }
    }
}

func TestLoad_NewLoadStartsAfterSettlement(t *testing.T) {
    stock := &fakeStock{snap: Snapshot{Prices: map[string]float64{"VOO": 1}, Source: SourceRealtime}}
    crypto := &fakeCrypto{snap: Snapshot{Prices: map[string]float64{}, Source: SourceRealtime}}
    l := NewLoader(stock, crypto)

    l.Load(context.Background(), false)
    l.Load(context.Background(), false)

    if got := stock.calls.Load(); got != 2 {
        t.Fatalf("sequential loads must each fetch, got %d calls", got)
    }
}

func TestFirstOf_EvaluatesTiersInOrder(t *testing.T) {
    var order []string
    decline := func(name string) Step {
        return func() (Snapshot, bool) {
            order = append(order, name)
            return Snapshot{}, false
        }
    }
    hit := Snapshot{Prices: map[string]float64{"X": 1}, Source: SourceStaleCache}

    snap := FirstOf(
        decline("live"),
        decline("cache"),
        func() (Snapshot, bool) { order = append(order, "stale"); return hit, true },
        func() (Snapshot, bool) { t.Fatal("tier after a hit must not run"); return Snapshot{}, false },
    )

    if snap.Source != SourceStaleCache {
        t.Fatalf("want the stale tier's snapshot, got %s", snap.Source)
    }
    if len(order) != 3 || order[0] != "live" || order[1] != "cache" || order[2] != "stale" {
        t.Fatalf("unexpected evaluation order: %v", order)
    }
}

func TestFirstOf_EmptyChainYieldsEmptyMapping(t *testing.T) {
    snap := FirstOf()
    if snap.Prices == nil || len(snap.Prices) != 0 {
        t.Fatalf("want empty non-nil mapping, got %v", snap.Prices)
    }
    if snap.Source != SourceRealtime {
        t.Fatalf("want realtime tag on the empty mapping, got %s", snap.Source)
    }
}

func TestValid_RejectsNonFinite(t *testing.T) {
    for v, want := range map[float64]bool{
        632.6: true,
        0:     false,
        -1:    false,
    } {
        if Valid(v) != want {
            t.Fatalf("Valid(%v) != %v", v, want)
        }
    }
}
