// Package respcache memoizes validated responses for idempotent reads,
// keyed by the exact invocation signature. Entries live for the whole
// process and never expire; staleness is the caller's call, handled by
// overwriting on a fresh successful fetch.
package respcache

import (
	"sync"

	"github.com/jkorri/tmcli/internal/protocol"
)

// Entry is the most recent validated response for one signature.
type Entry struct {
	// Data is the raw payload exactly as the final record carried it.
	Data []byte
	// Record is the final record the payload came from.
	Record protocol.Record
}

// Cache is a process-wide signature → entry memo.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns a copy of the entry for sig, if present. The copy keeps the
// stored bytes immutable no matter what callers do with the result.
func (c *Cache) Get(sig string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sig]
	if !ok {
		return Entry{}, false
	}
	out := e
	out.Data = append([]byte(nil), e.Data...)
	return out, true
}

// Put stores the latest entry for sig, overwriting any previous one.
func (c *Cache) Put(sig string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.Data = append([]byte(nil), e.Data...)
	c.entries[sig] = e
}

// Delete removes the entry for sig, if any.
func (c *Cache) Delete(sig string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sig)
}

// Clear drops every entry. Used after logout so cached payloads from the
// previous account cannot leak.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
