package token

import (
	"context"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "valueconverter/internal/cache"
    "valueconverter/internal/httpx"
)

func TestSearch_SessionCacheKeyedByLowerCasedQuery(t *testing.T) {
    var hits int
    ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        hits++
        fmt.Fprint(w, `{"coins":[{"id":"pepe","name":"Pepe","symbol":"PEPE","thumb":"t.png","large":"l.png"}]}`)
    }))
    defer ts.Close()

    r := NewResolver(httpx.New(5*time.Second), cache.New(t.TempDir()), ts.URL)

    coins, err := r.Search(context.Background(), "Pepe")
    if err != nil { t.Fatal(err) }
    if len(coins) != 1 || coins[0].ID != "pepe" {
        t.Fatalf("unexpected candidates: %+v", coins)
    }

    // Same query in a different case must hit the session cache.
    if _, err := r.Search(context.Background(), "PEPE"); err != nil { t.Fatal(err) }
    if hits != 1 {
        t.Fatalf("want 1 upstream search, got %d", hits)
    }
}

func TestSearch_CachesEmptyResultToo(t *testing.T) {
    var hits int
    ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        hits++
        fmt.Fprint(w, `{"coins":[]}`)
    }))
    defer ts.Close()

    r := NewResolver(httpx.New(5*time.Second), cache.New(t.TempDir()), ts.URL)
    if _, err := r.Search(context.Background(), "nope"); err != nil { t.Fatal(err) }
    if _, err := r.Search(context.Background(), "nope"); err != nil { t.Fatal(err) }
    if hits != 1 {
        t.Fatalf("empty results must be cached as well, got %d hits", hits)
    }
}

func TestSearch_FailurePropagates(t *testing.T) {
    ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        http.Error(w, "down", http.StatusInternalServerError)
    }))
    defer ts.Close()

    r := NewResolver(httpx.New(2*time.Second), cache.New(t.TempDir()), ts.URL)
    if _, err := r.Search(context.Background(), "pepe"); err == nil {
        t.Fatal("search failures are surfaced, not degraded")
    }
}

func TestResolvePrice_CachesPerTokenID(t *testing.T) {
    var hits int
    ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        hits++
        fmt.Fprint(w, `{"pepe":{"usd":0.0000012}}`)
    }))
    defer ts.Close()

    r := NewResolver(httpx.New(5*time.Second), cache.New(t.TempDir()), ts.URL)

    p1, err := r.ResolvePrice(context.Background(), "pepe")
    if err != nil { t.Fatal(err) }
    p2, err := r.ResolvePrice(context.Background(), "pepe")
    if err != nil { t.Fatal(err) }

    if p1 != 0.0000012 || p2 != p1 {
        t.Fatalf("unexpected prices %v %v", p1, p2)
    }
    if hits != 1 {
        t.Fatalf("second resolve must come from cache, got %d hits", hits)
    }
}

func TestResolvePrice_NeverReturnsZeroOrPlaceholder(t *testing.T) {
    for name, body := range map[string]string{
        "zero price":   `{"pepe":{"usd":0}}`,
        "negative":     `{"pepe":{"usd":-3}}`,
        "missing id":   `{}`,
        "missing vs":   `{"pepe":{}}`,
    } {
        ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            fmt.Fprint(w, body)
        }))
        r := NewResolver(httpx.New(5*time.Second), cache.New(t.TempDir()), ts.URL)
        if _, err := r.ResolvePrice(context.Background(), "pepe"); err == nil {
            t.Fatalf("%s: want price-unavailable error", name)
        }
        ts.Close()
    }
}

func TestSelect_RegistryKeyedByUppercasedSymbol(t *testing.T) {
    ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        fmt.Fprint(w, `{"pepe":{"usd":0.0000012}}`)
    }))
    defer ts.Close()

    r := NewResolver(httpx.New(5*time.Second), cache.New(t.TempDir()), ts.URL)
    tok, err := r.Select(context.Background(), Candidate{ID: "pepe", Name: "Pepe", Symbol: "pepe", Large: "l.png"})
    if err != nil { t.Fatal(err) }
    if tok.Price != 0.0000012 || tok.ImageURL != "l.png" {
        t.Fatalf("unexpected token: %+v", tok)
    }

    got, ok := r.Lookup("pepe")
    if !ok || got.ID != "pepe" {
        t.Fatalf("lookup by any-case symbol failed: %+v ok=%v", got, ok)
    }
    if _, ok := r.Lookup("PEPE"); !ok {
        t.Fatal("registry must be keyed by uppercased symbol")
    }
}
