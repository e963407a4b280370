package alert

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) Notify(_ context.Context, symbol, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, symbol+": "+title)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func snap(symbol string, price float64) domain.PriceSnapshot {
	return domain.PriceSnapshot{Symbol: symbol, Last: price, ReceivedAt: time.Now()}
}

func newTestEvaluator(rules []Rule, rec *recordingNotifier) *Evaluator {
	return NewEvaluator(rules, rec, 5*time.Minute, slog.New(slog.DiscardHandler))
}

func TestEvaluator_FiresAboveThreshold(t *testing.T) {
	rec := &recordingNotifier{}
	e := newTestEvaluator([]Rule{{Symbol: "btcusdt", Direction: Above, Threshold: 70000}}, rec)

	e.OnPrice(snap("BTCUSDT", 69999))
	assert.Equal(t, 0, rec.count())

	e.OnPrice(snap("BTCUSDT", 70001))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEvaluator_FiresBelowThreshold(t *testing.T) {
	rec := &recordingNotifier{}
	e := newTestEvaluator([]Rule{{Symbol: "ETHUSDT", Direction: Below, Threshold: 2000}}, rec)

	e.OnPrice(snap("ETHUSDT", 2000))
	assert.Equal(t, 0, rec.count())

	e.OnPrice(snap("ETHUSDT", 1999.5))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEvaluator_CooldownSuppressesRepeats(t *testing.T) {
	rec := &recordingNotifier{}
	e := newTestEvaluator([]Rule{{Symbol: "BTCUSDT", Direction: Above, Threshold: 100}}, rec)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		e.OnPrice(snap("BTCUSDT", 150))
	}
	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

	// Past the cooldown the rule is armed again.
	now = now.Add(5*time.Minute + time.Second)
	e.OnPrice(snap("BTCUSDT", 150))
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestEvaluator_IndependentRules(t *testing.T) {
	rec := &recordingNotifier{}
	e := newTestEvaluator([]Rule{
		{Symbol: "BTCUSDT", Direction: Above, Threshold: 100},
		{Symbol: "BTCUSDT", Direction: Above, Threshold: 200},
	}, rec)

	e.OnPrice(snap("BTCUSDT", 250))
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestEvaluator_IgnoresUnknownSymbols(t *testing.T) {
	rec := &recordingNotifier{}
	e := newTestEvaluator([]Rule{{Symbol: "BTCUSDT", Direction: Above, Threshold: 100}}, rec)

	e.OnPrice(snap("ETHUSDT", 9999))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}
