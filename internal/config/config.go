package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
)

type Server struct {
    Port              string `json:"port"`
    StaticDir         string `json:"static_dir"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type AlphaVantage struct {
    APIKey        string `json:"api_key"`
    Endpoint      string `json:"endpoint"`
    CacheTTLHours int    `json:"cache_ttl_hours"`
}

type Stock struct {
    // ProxyBaseURL is where the client-side source finds the stock
    // proxy. Empty means same process, http://localhost:<port>.
    ProxyBaseURL    string `json:"proxy_base_url"`
    CacheTTLSeconds int    `json:"cache_ttl_sec"`
}

type CoinPaprika struct {
    Endpoint        string `json:"endpoint"`
    CacheTTLSeconds int    `json:"cache_ttl_sec"`
}

type CoinGecko struct {
    Endpoint string `json:"endpoint"`
}

type Cache struct {
    // Dir is the durable cache directory. If it is not writable the
    // store silently runs in-memory for the life of the process.
    Dir string `json:"dir"`
}

type Config struct {
    Server       Server       `json:"server"`
    AlphaVantage AlphaVantage `json:"alphavantage"`
    Stock        Stock        `json:"stock"`
    CoinPaprika  CoinPaprika  `json:"coinpaprika"`
    CoinGecko    CoinGecko    `json:"coingecko"`
    Cache        Cache        `json:"cache"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "3001", StaticDir: ".", RequestTimeoutSec: 10},
        AlphaVantage: AlphaVantage{
            Endpoint:      "https://www.alphavantage.co",
            CacheTTLHours: 24,
        },
        Stock: Stock{
            CacheTTLSeconds: 5 * 60,
        },
        CoinPaprika: CoinPaprika{
            Endpoint:        "https://api.coinpaprika.com/v1",
            CacheTTLSeconds: 3 * 60,
        },
        CoinGecko: CoinGecko{
            Endpoint: "https://api.coingecko.com/api/v3",
        },
        Cache: Cache{Dir: ".cache"},
    }
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("STATIC_DIR"); v != "" { cfg.Server.StaticDir = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" { cfg.AlphaVantage.APIKey = v }
    if v := os.Getenv("ALPHAVANTAGE_ENDPOINT"); v != "" { cfg.AlphaVantage.Endpoint = v }
    if v := os.Getenv("ALPHAVANTAGE_CACHE_TTL_HOURS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.AlphaVantage.CacheTTLHours = x }
    }
    if v := os.Getenv("STOCK_PROXY_BASE_URL"); v != "" { cfg.Stock.ProxyBaseURL = v }
    if v := os.Getenv("STOCK_CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Stock.CacheTTLSeconds = x }
    }
    if v := os.Getenv("COINPAPRIKA_ENDPOINT"); v != "" { cfg.CoinPaprika.Endpoint = v }
    if v := os.Getenv("COINPAPRIKA_CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.CoinPaprika.CacheTTLSeconds = x }
    }
    if v := os.Getenv("COINGECKO_ENDPOINT"); v != "" { cfg.CoinGecko.Endpoint = v }
    if v := os.Getenv("CACHE_DIR"); v != "" { cfg.Cache.Dir = v }
}
