package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "log"
    "os"
    "strings"
    "time"

    "valueconverter/internal/cache"
    "valueconverter/internal/config"
    "valueconverter/internal/httpx"
    "valueconverter/internal/prices"
    "valueconverter/internal/prices/crypto"
    "valueconverter/internal/prices/stock"
    "valueconverter/internal/prices/token"
)

func main() {
    var proxyURL string
    var force bool
    var timeout int
    var configPath string
    var search string
    var tokenID string

    flag.StringVar(&proxyURL, "proxy", getenv("STOCK_PROXY_BASE_URL", "http://localhost:3001"), "base URL of the stock proxy")
    flag.BoolVar(&force, "force", getenvBool("FORCE_REFRESH", false), "skip fresh caches and refetch")
    flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
    flag.StringVar(&search, "search", "", "search custom tokens instead of loading prices")
    flag.StringVar(&tokenID, "token", "", "resolve the USD price of one token id instead of loading prices")
    flag.Parse()

    cfg, err := config.Load(configPath)
    if err != nil { log.Fatalf("config: %v", err) }
    if proxyURL != "" { cfg.Stock.ProxyBaseURL = proxyURL }
    if timeout != 0 { cfg.Server.RequestTimeoutSec = timeout }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
    store := cache.New(cfg.Cache.Dir)

    ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second)
    defer cancel()

    if search != "" || tokenID != "" {
        resolver := token.NewResolver(httpClient, store, cfg.CoinGecko.Endpoint)
        if search != "" {
            coins, err := resolver.Search(ctx, search)
            if err != nil { log.Fatalf("search: %v", err) }
            printJSON(coins)
            return
        }
        price, err := resolver.ResolvePrice(ctx, tokenID)
        if err != nil { log.Fatalf("token price: %v", err) }
        printJSON(map[string]float64{tokenID: price})
        return
    }

    loader := prices.NewLoader(
        stock.New(httpClient, store, cfg.Stock.ProxyBaseURL, time.Duration(cfg.Stock.CacheTTLSeconds)*time.Second),
        crypto.New(httpClient, store, cfg.CoinPaprika.Endpoint, time.Duration(cfg.CoinPaprika.CacheTTLSeconds)*time.Second),
    )
    result := loader.Load(ctx, force)
    printJSON(result)
}

func printJSON(v any) {
    out, err := json.MarshalIndent(v, "", "  ")
    if err != nil { log.Fatalf("encode: %v", err) }
    fmt.Println(string(out))
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
func getenvInt(key string, def int) int {
    if v := os.Getenv(key); v != "" {
        var x int
        _, _ = fmt.Sscanf(v, "%d", &x)
        if x != 0 { return x }
    }
    return def
}
func getenvBool(key string, def bool) bool {
    if v := os.Getenv(key); v != "" {
        switch strings.ToLower(v) {
        case "1", "true", "yes", "y": return true
        case "0", "false", "no", "n": return false
        }
    }
    return def
}
