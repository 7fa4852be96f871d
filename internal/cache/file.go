// Package cache holds the provider response cache and in-process memos.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/aurorawatch/internal/metrics"
)

// envelope is the on-disk format shared with other tools reading the cache dir.
type envelope struct {
	FetchedAt time.Time       `json:"_fetchedAt"`
	Data      json.RawMessage `json:"data"`
}

// File is a best-effort JSON cache keyed by provider and rounded coordinates.
// Read and write failures are logged and treated as misses.
type File struct {
	dir   string
	ttl   time.Duration
	clock clockwork.Clock
	log   *slog.Logger
}

// NewFile creates a cache rooted at dir. Entries older than ttl are ignored.
func NewFile(dir string, ttl time.Duration, clock clockwork.Clock, log *slog.Logger) *File {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("could not create cache directory", "dir", dir, "error", err)
	}
	return &File{dir: dir, ttl: ttl, clock: clock, log: log.With("component", "cache")}
}

// Path returns the cache file path for a provider at a location.
func (c *File) Path(provider string, lat, lon float64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%.3f_%.3f.json", provider, lat, lon))
}

// Get decodes a fresh cached payload into dst. It reports whether dst was filled.
func (c *File) Get(provider string, lat, lon float64, dst any) bool {
	path := c.Path(provider, lat, lon)
	b, err := os.ReadFile(path)
	if err != nil {
		metrics.CacheLookups.WithLabelValues(provider, "miss").Inc()
		return false
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		c.log.Warn("corrupt cache entry", "path", path, "error", err)
		metrics.CacheLookups.WithLabelValues(provider, "miss").Inc()
		return false
	}
	if c.ttl > 0 && c.clock.Since(env.FetchedAt) > c.ttl {
		metrics.CacheLookups.WithLabelValues(provider, "stale").Inc()
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		c.log.Warn("cache payload does not decode", "path", path, "error", err)
		metrics.CacheLookups.WithLabelValues(provider, "miss").Inc()
		return false
	}

	metrics.CacheLookups.WithLabelValues(provider, "hit").Inc()
	return true
}

// Set stores data for a provider at a location. Failures are logged only.
func (c *File) Set(provider string, lat, lon float64, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Warn("cache payload does not encode", "provider", provider, "error", err)
		return
	}
	b, err := json.Marshal(envelope{FetchedAt: c.clock.Now().UTC(), Data: raw})
	if err != nil {
		return
	}

	path := c.Path(provider, lat, lon)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		c.log.Warn("cache write failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		c.log.Warn("cache write failed", "path", path, "error", err)
		_ = os.Remove(tmp)
	}
}
