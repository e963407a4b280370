// Package memory implements the in-process snapshot cache.
package memory

import (
	"sync"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// SnapshotCache holds the single latest PriceSnapshot per symbol. Writes come
// only from the upstream feed client; reads come from the hub and the REST
// surface. A new tick unconditionally replaces the prior snapshot.
type SnapshotCache struct {
	mu    sync.RWMutex
	snaps map[string]domain.PriceSnapshot
}

// NewSnapshotCache creates an empty SnapshotCache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snaps: make(map[string]domain.PriceSnapshot)}
}

// Put stores snap, overwriting any existing entry for the symbol.
func (c *SnapshotCache) Put(snap domain.PriceSnapshot) {
	c.mu.Lock()
	c.snaps[snap.Symbol] = snap
	c.mu.Unlock()
}

// Get returns the latest snapshot for symbol, if one exists.
func (c *SnapshotCache) Get(symbol string) (domain.PriceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snaps[symbol]
	return snap, ok
}

// All returns every cached snapshot.
func (c *SnapshotCache) All() []domain.PriceSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.PriceSnapshot, 0, len(c.snaps))
	for _, snap := range c.snaps {
		out = append(out, snap)
	}
	return out
}

// Len returns the number of cached symbols.
func (c *SnapshotCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snaps)
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
