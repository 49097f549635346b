package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

// Embed colors by event.
const (
	colorRed    = 0xE53935
	colorYellow = 0xFDD835
	colorGreen  = 0x43A047
	colorBlue   = 0x1E88E5
)

// Discord sends notifications via a Discord webhook.
type Discord struct {
	baseNotifier
	webhookURL string
	httpClient *http.Client
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Footer      discordFooter `json:"footer"`
	Timestamp   string        `json:"timestamp"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func embedColor(event model.Event) int {
	switch event {
	case model.EventAreaCritical, model.EventAlertCreated, model.EventFeedFailed:
		return colorRed
	case model.EventAreaWarning, model.EventFeedLost:
		return colorYellow
	case model.EventAreaNormal, model.EventFeedConnected:
		return colorGreen
	default:
		return colorBlue
	}
}

// Send posts one embed, colored by severity and footed with the event name.
func (d *Discord) Send(ctx context.Context, event model.Event, title, message string) error {
	return d.sendJSON(ctx, d.httpClient, http.MethodPost, d.webhookURL, discordPayload{
		Username: defaultTitle,
		Embeds: []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       embedColor(event),
			Footer:      discordFooter{Text: string(event)},
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	})
}
