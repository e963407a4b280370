package domain

import (
	"context"
	"time"
)

// SnapshotCache is the authoritative latest-value store, one entry per symbol.
// It is written only by the upstream feed client and read by everyone else.
type SnapshotCache interface {
	Put(snap PriceSnapshot)
	Get(symbol string) (PriceSnapshot, bool)
	All() []PriceSnapshot
}

// SnapshotMirror copies snapshots into an out-of-process store (Redis) so
// collaborators outside this process can read latest prices. Mirror writes are
// best effort; a mirror failure never blocks the in-process fan-out. Reads
// serve a freshly restarted process whose in-memory cache is still cold and
// return ErrNotFound for symbols never mirrored.
type SnapshotMirror interface {
	SetSnapshot(ctx context.Context, snap PriceSnapshot) error
	GetSnapshot(ctx context.Context, symbol string) (PriceSnapshot, error)
}

// SignalBus provides pub/sub for price events consumed outside this process.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
