package main

import (
    "compress/gzip"
    "context"
    "encoding/json"
    "io"
    "log"
    "math"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "sync"
    "syscall"
    "time"

    "valueconverter/internal/config"
    "valueconverter/internal/httpx"
    "valueconverter/internal/quote"
    "valueconverter/internal/quote/alphavantage"
)

// allowedSymbols is the proxy allow-list. Anything else is rejected
// before any upstream is consulted.
var allowedSymbols = map[string]bool{"VOO": true, "QQQ": true}

type stockResponse struct {
    Symbol    string  `json:"symbol"`
    Price     float64 `json:"price"`
    Timestamp int64   `json:"timestamp"` // epoch millis
}

type errorResponse struct {
    Error   string `json:"error"`
    Details string `json:"details,omitempty"`
}

func main() {
    cfgPath := os.Getenv("CONFIG_FILE")
    cfg, err := config.Load(cfgPath)
    if err != nil { log.Fatalf("config: %v", err) }

    if cfg.AlphaVantage.APIKey == "" {
        log.Println("warning: ALPHAVANTAGE_API_KEY not set; upstream quote calls will be rejected")
    }

    httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

    avClient, err := alphavantage.NewAlphaVantageAPIClient(
        cfg.AlphaVantage.APIKey,
        alphavantage.WithBaseURL(cfg.AlphaVantage.Endpoint),
        alphavantage.WithHTTPClient(httpClient.HTTP),
        alphavantage.WithHeader(http.Header{
            "User-Agent": []string{"value-converter/1.0"},
        }),
    )
    if err != nil { log.Fatalf("alphavantage client: %v", err) }

    src := quote.NewSource(avClient, time.Duration(cfg.AlphaVantage.CacheTTLHours)*time.Hour)

    mux := http.NewServeMux()
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("/api/stock/", func(w http.ResponseWriter, r *http.Request) {
        handleStock(w, r, src)
    })
    // Everything else is the static app (index.html, script, assets).
    mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           withGzip(recoverPanic(mux)),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      20 * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        log.Printf("server listening on :%s", cfg.Server.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatalf("server: %v", err)
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

// priceSource is the part of quote.Source the handler needs.
type priceSource interface {
    Price(ctx context.Context, symbol string) (float64, error)
}

func handleStock(w http.ResponseWriter, r *http.Request, src priceSource) {
    w.Header().Set("Content-Type", "application/json; charset=utf-8")
    w.Header().Set("Access-Control-Allow-Origin", "*")
    w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

    switch r.Method {
    case http.MethodOptions:
        w.WriteHeader(http.StatusOK)
        return
    case http.MethodGet:
    default:
        writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
        return
    }

    symbol := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/stock/"), "/"))
    if symbol == "" {
        writeError(w, http.StatusBadRequest, "Missing symbol parameter", "")
        return
    }
    if !allowedSymbols[symbol] {
        writeError(w, http.StatusBadRequest, "Invalid symbol. Only VOO and QQQ are supported.", "")
        return
    }

    ctx, cancel := context.WithTimeout(r.Context(), httpx.StockProxyTimeout)
    defer cancel()

    price, err := src.Price(ctx, symbol)
    if err != nil {
        log.Printf("stock %s: %v", symbol, err)
        writeError(w, http.StatusInternalServerError, "Failed to fetch stock price", err.Error())
        return
    }

    // One decimal is plenty for display and keeps the payload stable.
    resp := stockResponse{
        Symbol:    symbol,
        Price:     math.Round(price*10) / 10,
        Timestamp: time.Now().UnixMilli(),
    }
    w.WriteHeader(http.StatusOK)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Details: details})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
    var gzPool = sync.Pool{New: func() any {
        // Prefer best speed to reduce CPU usage since payloads are JSON
        w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
        return w
    }}
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
        next.ServeHTTP(gw, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                http.Error(w, "internal server error", http.StatusInternalServerError)
            }
        }()
        next.ServeHTTP(w, r)
    })
}
