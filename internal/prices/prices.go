package prices

import (
    "math"
    "time"
)

// Source identifies which tier of the fallback chain produced a snapshot.
type Source string

const (
    SourceRealtime   Source = "realtime"
    SourceCache      Source = "cache"
    SourceStaleCache Source = "stale-cache"
    SourceFallback   Source = "fallback"
)

// Snapshot is a set of USD prices plus the provenance of the data.
// Every included price is finite and positive; a symbol absent from
// Prices means "unavailable", never zero.
type Snapshot struct {
    Prices     map[string]float64 `json:"prices"`
    Source     Source             `json:"source"`
    ObservedAt time.Time          `json:"observed_at"`
}

// Step is one tier of a fallback chain. It either yields a snapshot or
// declines so the next tier is consulted.
type Step func() (Snapshot, bool)

// FirstOf evaluates fallback tiers in order and returns the first
// snapshot produced. The last tier of every chain is expected to be
// unconditional; if none yields, an empty realtime snapshot is
// returned so callers always see a usable (possibly empty) mapping.
func FirstOf(steps ...Step) Snapshot {
    for _, step := range steps {
        if snap, ok := step(); ok {
            return snap
        }
    }
    return Snapshot{Prices: map[string]float64{}, Source: SourceRealtime, ObservedAt: time.Now()}
}

// Valid reports whether a price is usable: finite and strictly positive.
func Valid(price float64) bool {
    return price > 0 && !math.IsInf(price, 0) && !math.IsNaN(price)
}
