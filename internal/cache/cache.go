package cache

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "sync"
    "time"
)

// Version is the cache schema version. Bumping it changes every key,
// so entries written by an older schema are simply never read again.
const Version = 1

// Logical namespaces for the converter's cache buckets.
const (
    NSStockPrices        = "stockPrices"
    NSPresetCryptoPrices = "presetCryptoPrices"
    NSTokenPrice         = "coingeckoTokenPrice"
)

// Unbounded disables age checking on Read. Reserved for last-resort
// stale reads when every live source has failed.
const Unbounded time.Duration = -1

// Key builds a versioned cache key: valueConverter:caches:v1:<ns>[:<part>...].
func Key(namespace string, parts ...string) string {
    key := "valueConverter:caches:v" + strconv.Itoa(Version) + ":" + namespace
    for _, p := range parts {
        key += ":" + p
    }
    return key
}

// Entry is a timestamped payload. Data is only trusted when the entry
// is younger than the max age the reader passes.
type Entry struct {
    TS   int64           `json:"ts"` // epoch millis of the write
    Data json.RawMessage `json:"data"`
}

// Decode unmarshals the entry payload into v.
func (e Entry) Decode(v any) error { return json.Unmarshal(e.Data, v) }

// Time returns the write instant.
func (e Entry) Time() time.Time { return time.UnixMilli(e.TS) }

// Store is a versioned key-value store with timestamped entries.
// Entries live in one JSON file per key under a durable directory when
// one is available, otherwise in an in-process map for the lifetime of
// the process. The medium is selected once, at construction, by
// probing the directory with a throwaway write.
type Store struct {
    dir string // "" -> memory only

    mu  sync.Mutex
    mem map[string]Entry

    now func() time.Time
}

// New returns a Store rooted at dir. If dir is empty or not writable
// the store is memory-only; that is never an error for callers.
func New(dir string) *Store {
    s := &Store{mem: make(map[string]Entry), now: time.Now}
    if dir != "" && probeWritable(dir) {
        s.dir = dir
    }
    return s
}

func probeWritable(dir string) bool {
    if err := os.MkdirAll(dir, 0o755); err != nil { return false }
    probe := filepath.Join(dir, ".probe")
    if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil { return false }
    _ = os.Remove(probe)
    return true
}

// Read returns the entry for key if it exists, is well formed, and is
// no older than maxAge. A negative maxAge (Unbounded) disables the age
// check entirely.
func (s *Store) Read(key string, maxAge time.Duration) (Entry, bool) {
    e, ok := s.load(key)
    if !ok || e.TS <= 0 { return Entry{}, false }
    if maxAge >= 0 {
        age := s.now().UnixMilli() - e.TS
        if age > maxAge.Milliseconds() { return Entry{}, false }
    }
    return e, true
}

// Write stores v under key with the current timestamp, replacing any
// previous entry. Storage failures fall back to the in-process map and
// are never surfaced: a cache write must not abort the caller's
// primary operation.
func (s *Store) Write(key string, v any) {
    data, err := json.Marshal(v)
    if err != nil { return }
    e := Entry{TS: s.now().UnixMilli(), Data: data}

    if s.dir != "" {
        raw, err := json.Marshal(e)
        if err == nil {
            if err := os.WriteFile(s.path(key), raw, 0o644); err == nil {
                return
            }
        }
    }
    s.mu.Lock()
    s.mem[key] = e
    s.mu.Unlock()
}

func (s *Store) load(key string) (Entry, bool) {
    if s.dir != "" {
        raw, err := os.ReadFile(s.path(key))
        if err == nil {
            var e Entry
            if json.Unmarshal(raw, &e) == nil && len(e.Data) > 0 {
                return e, true
            }
            // malformed file: treat as absent, fall through to memory
        }
    }
    s.mu.Lock()
    e, ok := s.mem[key]
    s.mu.Unlock()
    return e, ok
}

var keySanitizer = strings.NewReplacer(":", "_", "/", "_", "\\", "_", "*", "_", "?", "_")

func (s *Store) path(key string) string {
    return filepath.Join(s.dir, keySanitizer.Replace(key)+".json")
}
