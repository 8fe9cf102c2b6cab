// Package notify fans trade alerts out to chat channels. The position
// lifecycle emits events (position_opened, stop_moved, partial_exit,
// position_closed) and operators pick which of those reach their
// Telegram or Discord feeds.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one formatted alert to a single channel.
type Sender interface {
	// Send delivers the alert. The title is the short headline, the
	// message carries the position details.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier routes lifecycle events to every configured Sender, dropping
// events the operator did not subscribe to. NotifyAll skips the
// subscription check for alerts that must always go out.
type Notifier struct {
	senders    []Sender
	subscribed map[string]bool
	logger     *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. events lists the
// subscribed event types; an empty list subscribes to everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	subscribed := make(map[string]bool, len(events))
	for _, e := range events {
		subscribed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders:    senders,
		subscribed: subscribed,
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert when the event type is subscribed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.subscribed) > 0 && !n.subscribed[event] {
		n.logger.DebugContext(ctx, "event not subscribed, alert dropped",
			slog.String("event", event),
		)
		return nil
	}
	return n.fanOut(ctx, title, message)
}

// NotifyAll delivers the alert on every channel, subscription or not.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.fanOut(ctx, title, message)
}

// fanOut tries every sender even after one fails; a dead webhook must
// not silence the remaining channels. Failures come back joined.
func (n *Notifier) fanOut(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var failed []error
	for _, s := range n.senders {
		err := s.Send(ctx, title, message)
		if err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("notify: %d of %d channels failed: %w",
			len(failed), len(n.senders), errors.Join(failed...))
	}
	return nil
}
