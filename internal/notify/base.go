package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

// errBodyLimit caps how much of a failed response ends up in the error.
const errBodyLimit = 512

// baseNotifier holds the name and event filter every provider shares.
type baseNotifier struct {
	name   string
	events []model.Event
}

func newBase(name string, events []string) baseNotifier {
	return baseNotifier{name: name, events: parseEvents(events)}
}

// Name returns the provider name.
func (b *baseNotifier) Name() string { return b.name }

// ShouldNotify reports whether the provider is subscribed to event.
func (b *baseNotifier) ShouldNotify(event model.Event) bool {
	return slices.Contains(b.events, event)
}

// sendJSON encodes payload as the request body, or sends no body when
// payload is nil, and treats any status >= 400 as a failure.
func (b *baseNotifier) sendJSON(ctx context.Context, client *http.Client, method, target string, payload any) error {
	prefix := strings.ToLower(b.name)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal payload: %w", prefix, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", prefix, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		if msg := strings.TrimSpace(string(detail)); msg != "" {
			return fmt.Errorf("%s: unexpected status %d: %s", prefix, resp.StatusCode, msg)
		}
		return fmt.Errorf("%s: unexpected status %d", prefix, resp.StatusCode)
	}
	return nil
}
