package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// TelegramNotifier sends alerts to a chat through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   newHTTPClient(),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

var levelMarks = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	title := strings.TrimSpace(alert.Title + " " + alert.Symbol)
	msg := telegramMessage{
		ChatID:    t.chatID,
		Text:      fmt.Sprintf("%s *%s*\n\n%s", levelMarks[alert.Level], markdownV2.Replace(title), markdownV2.Replace(alert.Message)),
		ParseMode: "MarkdownV2",
	}
	url := t.baseURL + "/bot" + t.botToken + "/sendMessage"
	if err := postJSON(ctx, t.client, url, msg); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Printf("[telegram] %s %s", alert.Level, alert.Title)
	return nil
}

// markdownV2 escapes the characters Telegram reserves in MarkdownV2 text.
var markdownV2 = func() *strings.Replacer {
	var pairs []string
	for _, c := range "_*[]()~`>#+-=|{}.!\\" {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}()
