package hub

import (
	"time"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// clientRequest is the JSON message a downstream client sends.
type clientRequest struct {
	Action  string   `json:"action"`  // "subscribe", "unsubscribe", or "ping"
	Symbols []string `json:"symbols,omitempty"`
}

type connectedMsg struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
}

type subscribedMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type unsubscribedMsg struct {
	Type      string   `json:"type"`
	Symbols   []string `json:"symbols"`
	Remaining []string `json:"remaining"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type priceMsg struct {
	Type               string  `json:"type"`
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

func newPriceMsg(snap domain.PriceSnapshot) priceMsg {
	ts := snap.EventTime
	if ts.IsZero() {
		ts = snap.ReceivedAt
	}
	return priceMsg{
		Type:               "price",
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

func newPongMsg(now time.Time) pongMsg {
	return pongMsg{Type: "pong", Timestamp: now.UnixMilli()}
}
