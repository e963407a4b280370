package domain

import "time"

// PriceSnapshot is the latest known 24h ticker state for one symbol. Exactly
// one snapshot exists per symbol; a newer tick always replaces the previous
// one regardless of the embedded exchange timestamp (last-write-wins).
type PriceSnapshot struct {
	Symbol        string    // uppercase, e.g. "BTCUSDT"
	Last          float64   // last trade price
	Open          float64
	High          float64
	Low           float64
	Close         float64   // previous close
	Volume        float64
	Change        float64   // absolute 24h price change
	ChangePercent float64   // 24h price change in percent
	EventTime     time.Time // exchange event timestamp
	ReceivedAt    time.Time // local ingestion timestamp
}

// PriceHandler is called for every snapshot written by the upstream feed.
// Handlers run on the feed's read goroutine and must not block.
type PriceHandler func(PriceSnapshot)
