package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

// Webhook sends notifications to a generic HTTP endpoint.
type Webhook struct {
	baseNotifier
	url        string
	method     string
	httpClient *http.Client
}

type webhookPayload struct {
	Event     string `json:"event"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Send delivers the notification. POST and PUT carry a JSON body; GET
// carries the same fields as query parameters.
func (w *Webhook) Send(ctx context.Context, event model.Event, title, message string) error {
	p := webhookPayload{
		Event:     string(event),
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	switch method := strings.ToUpper(w.method); method {
	case http.MethodGet:
		u, err := url.Parse(w.url)
		if err != nil {
			return fmt.Errorf("webhook: parse url: %w", err)
		}
		q := u.Query()
		q.Set("event", p.Event)
		q.Set("title", p.Title)
		q.Set("message", p.Message)
		q.Set("timestamp", p.Timestamp)
		u.RawQuery = q.Encode()
		return w.sendJSON(ctx, w.httpClient, method, u.String(), nil)
	case http.MethodPost, http.MethodPut:
		return w.sendJSON(ctx, w.httpClient, method, w.url, p)
	default:
		return fmt.Errorf("webhook: unsupported method %q (use GET, POST or PUT)", w.method)
	}
}
