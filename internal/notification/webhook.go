package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// webhookPayload is the JSON body posted for each alert.
type webhookPayload struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
	TS      string     `json:"ts"`
}

// WebhookNotifier posts alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: newHTTPClient(), now: time.Now}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		Symbol:  alert.Symbol,
		TS:      w.now().UTC().Format(time.RFC3339Nano),
	}
	if err := postJSON(ctx, w.client, w.url, p); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	log.Printf("[webhook] %s %s", alert.Level, alert.Title)
	return nil
}
