package upstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// controlFrame is a SUBSCRIBE/UNSUBSCRIBE request sent to the exchange. The
// id is monotonically increasing and correlates the acknowledgement.
type controlFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// wsError is the exchange's error payload.
type wsError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// inboundFrame is the superset of everything the combined stream delivers:
// control acknowledgements ({"result":null,"id":N}), error frames, and data
// frames wrapped in the combined-stream envelope ({"stream":...,"data":...}).
type inboundFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	Result json.RawMessage `json:"result"`
	ID     *int64          `json:"id"`
	Error  *wsError        `json:"error"`
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
}

// tickerEvent is the exchange's 24h rolling ticker payload. All numeric
// fields arrive as strings.
type tickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"` // milliseconds
	Symbol    string `json:"s"`
	Change    string `json:"p"`
	ChangePct string `json:"P"`
	PrevClose string `json:"x"`
	Last      string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

// parseTicker converts a raw data frame into a PriceSnapshot.
func parseTicker(data []byte, receivedAt time.Time) (domain.PriceSnapshot, error) {
	var ev tickerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("unmarshal ticker: %w", err)
	}
	if ev.Symbol == "" {
		return domain.PriceSnapshot{}, fmt.Errorf("ticker missing symbol")
	}

	snap := domain.PriceSnapshot{
		Symbol:     strings.ToUpper(ev.Symbol),
		EventTime:  time.UnixMilli(ev.EventTime),
		ReceivedAt: receivedAt,
	}

	fields := []struct {
		dst  *float64
		name string
		raw  string
	}{
		{&snap.Last, "last", ev.Last},
		{&snap.Open, "open", ev.Open},
		{&snap.High, "high", ev.High},
		{&snap.Low, "low", ev.Low},
		{&snap.Close, "close", ev.PrevClose},
		{&snap.Volume, "volume", ev.Volume},
		{&snap.Change, "change", ev.Change},
		{&snap.ChangePercent, "change_percent", ev.ChangePct},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return domain.PriceSnapshot{}, fmt.Errorf("parse %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}

	return snap, nil
}

// streamName returns the exchange-facing combined-stream name for a symbol.
func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@ticker"
}

// combinedStreamURL builds the multiplexed connection URL for the given
// stream names.
func combinedStreamURL(base string, streams []string) string {
	base = strings.TrimRight(base, "/")
	if len(streams) == 0 {
		return base + "/stream"
	}
	return base + "/stream?streams=" + strings.Join(streams, "/")
}
