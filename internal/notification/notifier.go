// Package notification delivers robot alerts (order failures, fills, session
// changes) to a log, a webhook or a Telegram chat.
package notification

import (
	"context"
	"errors"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.Symbol != "" {
		log.Printf("[notify] [%s] %s (%s): %s", alert.Level, alert.Title, alert.Symbol, alert.Message)
		return nil
	}
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every notifier. Each backend is tried even if an
// earlier one fails; the errors are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MinLevel drops alerts below a severity before passing them on.
type MinLevel struct {
	Level AlertLevel
	Next  Notifier
}

func (f MinLevel) Send(ctx context.Context, alert Alert) error {
	if alert.Level.rank() < f.Level.rank() {
		return nil
	}
	return f.Next.Send(ctx, alert)
}

func (l AlertLevel) rank() int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	}
	return 0
}

// Options selects the configured backends.
type Options struct {
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
	MinLevel         AlertLevel // remote backends only; the log sees everything
}

// FromOptions builds the log notifier plus any configured remote backends.
func FromOptions(o Options) Notifier {
	var remote Multi
	if o.WebhookURL != "" {
		remote = append(remote, NewWebhookNotifier(o.WebhookURL))
	}
	if o.TelegramBotToken != "" && o.TelegramChatID != "" {
		remote = append(remote, NewTelegramNotifier(o.TelegramBotToken, o.TelegramChatID))
	}
	if len(remote) == 0 {
		return NewLogNotifier()
	}
	var r Notifier = remote
	if o.MinLevel != "" {
		r = MinLevel{Level: o.MinLevel, Next: remote}
	}
	return Multi{NewLogNotifier(), r}
}
