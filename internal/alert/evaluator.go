// Package alert evaluates price threshold rules against the live feed and
// pushes matches to operator notification channels.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/pricerelay/internal/domain"
)

// Direction states which side of the threshold triggers a rule.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Rule fires when a symbol's last price crosses to the configured side of the
// threshold.
type Rule struct {
	Symbol    string
	Direction Direction
	Threshold float64
}

func (r Rule) key() string {
	return fmt.Sprintf("%s|%s|%g", r.Symbol, r.Direction, r.Threshold)
}

func (r Rule) matches(price float64) bool {
	switch r.Direction {
	case Above:
		return price > r.Threshold
	case Below:
		return price < r.Threshold
	default:
		return false
	}
}

// Notifier is the delivery side. Satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, symbol, title, message string) error
}

// Evaluator checks every snapshot against the rule set. A rule that matched
// stays quiet for the cooldown window so a hovering price does not spam the
// channels.
type Evaluator struct {
	rules    map[string][]Rule
	notifier Notifier
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewEvaluator builds an Evaluator. Rule symbols are normalized to uppercase.
func NewEvaluator(rules []Rule, notifier Notifier, cooldown time.Duration, logger *slog.Logger) *Evaluator {
	bySymbol := make(map[string][]Rule)
	for _, r := range rules {
		r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
		if r.Symbol == "" {
			continue
		}
		bySymbol[r.Symbol] = append(bySymbol[r.Symbol], r)
	}
	return &Evaluator{
		rules:     bySymbol,
		notifier:  notifier,
		cooldown:  cooldown,
		logger:    logger.With(slog.String("component", "alert")),
		now:       time.Now,
		lastFired: make(map[string]time.Time),
	}
}

// OnPrice evaluates a snapshot. Suitable for registration as a feed client
// price handler; notification delivery runs off the feed goroutine.
func (e *Evaluator) OnPrice(snap domain.PriceSnapshot) {
	rules := e.rules[snap.Symbol]
	if len(rules) == 0 {
		return
	}

	now := e.now()
	e.mu.Lock()
	var fired []Rule
	for _, r := range rules {
		if !r.matches(snap.Last) {
			continue
		}
		if last, ok := e.lastFired[r.key()]; ok && now.Sub(last) < e.cooldown {
			continue
		}
		e.lastFired[r.key()] = now
		fired = append(fired, r)
	}
	e.mu.Unlock()

	for _, r := range fired {
		e.logger.Info("alert triggered",
			slog.String("symbol", r.Symbol),
			slog.String("direction", string(r.Direction)),
			slog.Float64("threshold", r.Threshold),
			slog.Float64("price", snap.Last),
		)
		go e.deliver(r, snap.Last)
	}
}

func (e *Evaluator) deliver(r Rule, price float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	title := fmt.Sprintf("%s %s %g", r.Symbol, r.Direction, r.Threshold)
	message := fmt.Sprintf("%s traded at %g, crossing the %s %g threshold.",
		r.Symbol, price, r.Direction, r.Threshold)

	if err := e.notifier.Notify(ctx, r.Symbol, title, message); err != nil {
		e.logger.Error("alert delivery failed",
			slog.String("symbol", r.Symbol),
			slog.String("error", err.Error()),
		)
	}
}
