package classifier

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"
)

// fingerprintPrefixLen bounds how much content feeds the cache key.
const fingerprintPrefixLen = 1000

// Fingerprint hashes the first 1000 characters of the content. It is a
// cheap memoization key for one run, not a content address: two talks
// sharing a prefix collide.
func Fingerprint(content string) string {
	runes := []rune(content)
	if len(runes) > fingerprintPrefixLen {
		runes = runes[:fingerprintPrefixLen]
	}
	h := fnv.New64a()
	h.Write([]byte(string(runes)))
	return strconv.FormatUint(h.Sum64(), 10)
}

// Cache memoizes classification results within a single run. It is
// owned by one sequential run and is never persisted.
type Cache struct {
	entries map[string]Result
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Result)}
}

// Get returns the cached result for a fingerprint, if any.
func (c *Cache) Get(fingerprint string) (Result, bool) {
	r, ok := c.entries[fingerprint]
	return r, ok
}

// Set stores a result under a fingerprint.
func (c *Cache) Set(fingerprint string, r Result) {
	c.entries[fingerprint] = r
}

// Size returns the number of cached results.
func (c *Cache) Size() int {
	return len(c.entries)
}

// RateGate keeps a minimum interval between successive classification
// calls. Cache hits never touch the gate.
type RateGate struct {
	interval time.Duration
	last     time.Time
}

// NewRateGate creates a gate with the given minimum interval. A zero or
// negative interval disables the gate.
func NewRateGate(interval time.Duration) *RateGate {
	return &RateGate{interval: interval}
}

// Wait sleeps just long enough to keep the interval since the previous
// call, or returns early when the context is cancelled. The first call
// never waits.
func (g *RateGate) Wait(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}
	if !g.last.IsZero() {
		if wait := g.interval - time.Since(g.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	g.last = time.Now()
	return nil
}
