package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends notifications via the Telegram Bot API.
type Telegram struct {
	baseNotifier
	apiBase             string
	token               string
	chatID              string
	disableNotification bool
	httpClient          *http.Client
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

// alwaysRing lists events that ignore disable_notification.
var alwaysRing = map[model.Event]bool{
	model.EventAreaCritical: true,
	model.EventFeedFailed:   true,
}

// Send posts an HTML message to the chat.
func (t *Telegram) Send(ctx context.Context, event model.Event, title, message string) error {
	text := html.EscapeString(message)
	if title != "" {
		text = "<b>" + html.EscapeString(title) + "</b>\n" + text
	}

	return t.sendJSON(ctx, t.httpClient, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token),
		telegramMessage{
			ChatID:                t.chatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
			DisableNotification:   t.disableNotification && !alwaysRing[event],
		})
}
