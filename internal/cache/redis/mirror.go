package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// Mirror implements domain.SnapshotMirror using Redis hashes. Each symbol's
// latest snapshot lives at key "price:{SYMBOL}" with one field per quote
// component, so external consumers can HGET a single field cheaply.
type Mirror struct {
	rdb *redis.Client
}

// NewMirror creates a Mirror backed by the given Client.
func NewMirror(c *Client) *Mirror {
	return &Mirror{rdb: c.Underlying()}
}

func snapshotKey(symbol string) string {
	return "price:" + symbol
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetSnapshot overwrites the mirrored snapshot for a symbol.
func (m *Mirror) SetSnapshot(ctx context.Context, snap domain.PriceSnapshot) error {
	fields := map[string]interface{}{
		"price":       formatFloat(snap.Last),
		"open":        formatFloat(snap.Open),
		"high":        formatFloat(snap.High),
		"low":         formatFloat(snap.Low),
		"close":       formatFloat(snap.Close),
		"volume":      formatFloat(snap.Volume),
		"change":      formatFloat(snap.Change),
		"change_pct":  formatFloat(snap.ChangePercent),
		"event_ts":    strconv.FormatInt(snap.EventTime.UnixMilli(), 10),
		"received_ts": strconv.FormatInt(snap.ReceivedAt.UnixNano(), 10),
	}
	if err := m.rdb.HSet(ctx, snapshotKey(snap.Symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// GetSnapshot reads a mirrored snapshot back. It returns domain.ErrNotFound
// when the symbol has never been mirrored.
func (m *Mirror) GetSnapshot(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	vals, err := m.rdb.HGetAll(ctx, snapshotKey(symbol)).Result()
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}

	snap := domain.PriceSnapshot{Symbol: symbol}
	for field, dst := range map[string]*float64{
		"price":      &snap.Last,
		"open":       &snap.Open,
		"high":       &snap.High,
		"low":        &snap.Low,
		"close":      &snap.Close,
		"volume":     &snap.Volume,
		"change":     &snap.Change,
		"change_pct": &snap.ChangePercent,
	} {
		raw, ok := vals[field]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("redis: parse %s for %s: %w", field, symbol, err)
		}
		*dst = f
	}

	if raw, ok := vals["event_ts"]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("redis: parse event_ts for %s: %w", symbol, err)
		}
		snap.EventTime = time.UnixMilli(ms)
	}
	if raw, ok := vals["received_ts"]; ok {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("redis: parse received_ts for %s: %w", symbol, err)
		}
		snap.ReceivedAt = time.Unix(0, ns)
	}

	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotMirror = (*Mirror)(nil)
