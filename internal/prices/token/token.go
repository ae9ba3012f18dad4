package token

import (
    "context"
    "fmt"
    "net/url"
    "strings"
    "sync"
    "time"

    "valueconverter/internal/cache"
    "valueconverter/internal/httpx"
    "valueconverter/internal/prices"
)

const (
    DefaultBaseURL  = "https://api.coingecko.com/api/v3"
    searchTTL       = 60 * time.Second
    priceTTL        = 2 * time.Minute
    maxSearchHits   = 10
)

// Candidate is a token search result the user can pick from.
type Candidate struct {
    ID     string `json:"id"`
    Name   string `json:"name"`
    Symbol string `json:"symbol"`
    Thumb  string `json:"thumb"`
    Large  string `json:"large"`
}

// Token is a resolved custom token held in the registry.
type Token struct {
    ID       string  `json:"id"`
    Name     string  `json:"name"`
    Symbol   string  `json:"symbol"`
    ImageURL string  `json:"image_url"`
    Price    float64 `json:"price"`
}

// Resolver searches the token API and resolves USD prices on demand.
//
// Unlike the stock and crypto sources there is no safe default price
// to substitute here, so search and price failures propagate to the
// caller instead of degrading silently.
type Resolver struct {
    client  *httpx.Client
    store   *cache.Store
    baseURL string
    timeout time.Duration

    mu       sync.Mutex
    searches map[string]searchEntry // session cache, keyed by lower-cased query
    registry map[string]Token       // keyed by uppercased symbol

    now func() time.Time
}

type searchEntry struct {
    at    time.Time
    coins []Candidate
}

func NewResolver(hc *httpx.Client, store *cache.Store, baseURL string) *Resolver {
    if baseURL == "" { baseURL = DefaultBaseURL }
    return &Resolver{
        client:   hc,
        store:    store,
        baseURL:  baseURL,
        timeout:  httpx.DefaultLookupTimeout,
        searches: make(map[string]searchEntry),
        registry: make(map[string]Token),
        now:      time.Now,
    }
}

// Search returns candidate tokens for a free-text query. Results are
// held in a session cache for a minute, keyed by the lower-cased query;
// an empty result list is cached like any other.
func (r *Resolver) Search(ctx context.Context, query string) ([]Candidate, error) {
    query = strings.TrimSpace(query)
    if query == "" {
        return nil, fmt.Errorf("empty search query")
    }
    key := strings.ToLower(query)

    r.mu.Lock()
    if e, ok := r.searches[key]; ok && r.now().Sub(e.at) < searchTTL {
        coins := e.coins
        r.mu.Unlock()
        return coins, nil
    }
    r.mu.Unlock()

    searchURL := fmt.Sprintf("%s/search?query=%s", r.baseURL, url.QueryEscape(query))
    body, err := r.client.GetJSON(ctx, searchURL, r.timeout)
    if err != nil {
        return nil, fmt.Errorf("token search: %w", err)
    }

    var resp struct {
        Coins []Candidate `json:"coins"`
    }
    if err := httpx.DecodeJSON(body, &resp); err != nil {
        return nil, fmt.Errorf("token search: %w", err)
    }
    coins := resp.Coins
    if len(coins) > maxSearchHits {
        coins = coins[:maxSearchHits]
    }

    r.mu.Lock()
    r.searches[key] = searchEntry{at: r.now(), coins: coins}
    r.mu.Unlock()
    return coins, nil
}

// ResolvePrice returns the USD price for a token id, consulting the
// two-minute per-token cache first. A response lacking a usable price,
// or a non-positive/non-finite value, fails the call: the resolver
// never hands back a zero or placeholder price.
func (r *Resolver) ResolvePrice(ctx context.Context, tokenID string) (float64, error) {
    key := cache.Key(cache.NSTokenPrice, tokenID)
    if e, ok := r.store.Read(key, priceTTL); ok {
        var cached struct {
            Price float64 `json:"price"`
        }
        if e.Decode(&cached) == nil && prices.Valid(cached.Price) {
            return cached.Price, nil
        }
    }

    priceURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", r.baseURL, url.QueryEscape(tokenID))
    body, err := r.client.GetJSON(ctx, priceURL, r.timeout)
    if err != nil {
        return 0, fmt.Errorf("token price: %w", err)
    }

    var resp map[string]map[string]float64
    if err := httpx.DecodeJSON(body, &resp); err != nil {
        return 0, fmt.Errorf("token price: %w", err)
    }
    price, ok := resp[tokenID]["usd"]
    if !ok || !prices.Valid(price) {
        return 0, fmt.Errorf("price unavailable for token %s", tokenID)
    }

    r.store.Write(key, struct {
        Price float64 `json:"price"`
    }{Price: price})
    return price, nil
}

// Select resolves the candidate's price and stores the token in the
// registry under its uppercased symbol, replacing any previous token
// with the same symbol.
func (r *Resolver) Select(ctx context.Context, c Candidate) (Token, error) {
    price, err := r.ResolvePrice(ctx, c.ID)
    if err != nil {
        return Token{}, err
    }

    image := c.Large
    if image == "" { image = c.Thumb }
    t := Token{
        ID:       c.ID,
        Name:     c.Name,
        Symbol:   c.Symbol,
        ImageURL: image,
        Price:    price,
    }

    r.mu.Lock()
    r.registry[strings.ToUpper(c.Symbol)] = t
    r.mu.Unlock()
    return t, nil
}

// Lookup returns the registered token for an uppercased symbol.
func (r *Resolver) Lookup(symbol string) (Token, bool) {
    r.mu.Lock()
    t, ok := r.registry[strings.ToUpper(symbol)]
    r.mu.Unlock()
    return t, ok
}
