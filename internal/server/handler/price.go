package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// PriceHandler serves REST reads over the latest-snapshot cache. REST and the
// WebSocket stream see the same data; REST is for consumers that poll.
type PriceHandler struct {
	cache  domain.SnapshotCache
	mirror domain.SnapshotMirror
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler over the given cache. mirror may be
// nil; when set it answers single-symbol reads the cache cannot, so a freshly
// restarted relay serves the last mirrored price instead of a 404.
func NewPriceHandler(cache domain.SnapshotCache, mirror domain.SnapshotMirror, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{cache: cache, mirror: mirror, logger: logger}
}

type priceResponse struct {
	Symbol             string  `json:"symbol"`
	Price              float64 `json:"price"`
	Open               float64 `json:"open"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	Close              float64 `json:"close"`
	Volume             float64 `json:"volume"`
	PriceChange        float64 `json:"priceChange"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	Timestamp          int64   `json:"timestamp"`
}

func toPriceResponse(snap domain.PriceSnapshot) priceResponse {
	ts := snap.EventTime
	if ts.IsZero() {
		ts = snap.ReceivedAt
	}
	return priceResponse{
		Symbol:             snap.Symbol,
		Price:              snap.Last,
		Open:               snap.Open,
		High:               snap.High,
		Low:                snap.Low,
		Close:              snap.Close,
		Volume:             snap.Volume,
		PriceChange:        snap.Change,
		PriceChangePercent: snap.ChangePercent,
		Timestamp:          ts.UnixMilli(),
	}
}

// ListPrices returns the latest snapshot for every symbol seen so far.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	snaps := h.cache.All()
	out := make([]priceResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toPriceResponse(snap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	writeJSON(w, http.StatusOK, map[string]any{
		"prices": out,
		"count":  len(out),
	})
}

// GetPrice returns the latest snapshot for one symbol.
// GET /api/prices/{symbol}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(pathParam(r, "symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	snap, ok := h.cache.Get(symbol)
	if !ok && h.mirror != nil {
		mirrored, err := h.mirror.GetSnapshot(r.Context(), symbol)
		if err == nil {
			snap, ok = mirrored, true
		} else if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("mirror read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no price for symbol")
		return
	}

	writeJSON(w, http.StatusOK, toPriceResponse(snap))
}
