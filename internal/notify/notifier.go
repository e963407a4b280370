// Package notify delivers price alert notifications to operator channels
// (Telegram, Discord). A notifier fans each alert out to every configured
// sender and can be restricted to a subset of symbols.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches alerts to one or more Senders. When a symbol filter is
// configured, Notify drops alerts for symbols outside it.
type Notifier struct {
	senders []Sender
	symbols map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. An empty
// symbols list means every symbol is forwarded.
func NewNotifier(senders []Sender, symbols []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		allowed[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	return &Notifier{
		senders: senders,
		symbols: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers an alert for a symbol, honouring the symbol filter.
func (n *Notifier) Notify(ctx context.Context, symbol, title, message string) error {
	if len(n.symbols) > 0 && !n.symbols[symbol] {
		n.logger.DebugContext(ctx, "alert filtered out",
			slog.String("symbol", symbol),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. A failing sender does not block the rest;
// failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
