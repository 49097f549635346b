// Package notify pushes crowd events (status escalations, new alerts, feed
// outages) to Telegram, Discord, and generic webhooks.
package notify

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/config"
	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// defaultHTTPTimeout bounds a single provider send.
const defaultHTTPTimeout = 5 * time.Second

const defaultTitle = "Crowd Monitor"

// Notifier is implemented by every notification provider.
type Notifier interface {
	Send(ctx context.Context, event model.Event, title, message string) error
	Name() string
	ShouldNotify(event model.Event) bool
}

// Dispatcher fans a notification out to every provider subscribed to its
// event.
type Dispatcher struct {
	notifiers []Notifier
	log       *logger.Logger
	wg        sync.WaitGroup
}

// NewDispatcher builds the enabled providers from cfg.
func NewDispatcher(cfg config.NotificationsConfig, log *logger.Logger) *Dispatcher {
	httpClient := &http.Client{
		Timeout: defaultHTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	var notifiers []Notifier
	if t := cfg.Telegram; t != nil && t.Enabled {
		notifiers = append(notifiers, &Telegram{
			baseNotifier:        newBase("Telegram", t.Events),
			apiBase:             telegramAPI,
			token:               t.Token,
			chatID:              t.ChatID,
			disableNotification: t.DisableNotification,
			httpClient:          httpClient,
		})
	}
	if d := cfg.Discord; d != nil && d.Enabled {
		notifiers = append(notifiers, &Discord{
			baseNotifier: newBase("Discord", d.Events),
			webhookURL:   d.WebhookURL,
			httpClient:   httpClient,
		})
	}
	if w := cfg.Webhook; w != nil && w.Enabled {
		method := w.Method
		if method == "" {
			method = http.MethodPost
		}
		notifiers = append(notifiers, &Webhook{
			baseNotifier: newBase("Webhook", w.Events),
			url:          w.Endpoint,
			method:       method,
			httpClient:   httpClient,
		})
	}

	return New(log, notifiers...)
}

// New returns a dispatcher over the given notifiers.
func New(log *logger.Logger, notifiers ...Notifier) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{notifiers: notifiers, log: log.With("notify")}
}

// Dispatch sends to every matching notifier, each in its own goroutine.
// It does not block on delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.Event, title, message string) {
	if title == "" {
		title = defaultTitle
	}
	for _, n := range d.notifiers {
		if !n.ShouldNotify(event) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultHTTPTimeout)
			defer cancel()
			if err := n.Send(sendCtx, event, Decorate(event, title), message); err != nil {
				d.log.Warn("Notification send failed",
					"provider", n.Name(),
					"event", string(event),
					"error", err,
				)
			}
		}()
	}
}

// Wait blocks until in-flight sends finish, e.g. before exit.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// NotifyFunc bridges logger events to this dispatcher.
func (d *Dispatcher) NotifyFunc() logger.NotifyFunc {
	return func(ctx context.Context, message string, event model.Event) {
		d.Dispatch(ctx, event, defaultTitle, message)
	}
}

// HasNotifiers reports whether any notifiers are configured.
func (d *Dispatcher) HasNotifiers() bool {
	return len(d.notifiers) > 0
}

// Names lists the configured providers.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

var eventIcons = map[model.Event]string{
	model.EventAreaCritical:  "🔴",
	model.EventAreaWarning:   "🟡",
	model.EventAreaNormal:    "🟢",
	model.EventAlertCreated:  "🚨",
	model.EventFeedConnected: "📡",
	model.EventFeedLost:      "⚠️",
	model.EventFeedFailed:    "❌",
	model.EventScan:          "🎫",
	model.EventTest:          "🧪",
}

// Decorate prefixes a title with the event's icon.
func Decorate(event model.Event, title string) string {
	if icon, ok := eventIcons[event]; ok {
		return icon + " " + title
	}
	return title
}

// parseEvents keeps the known event names; unknown ones are ignored.
func parseEvents(names []string) []model.Event {
	events := make([]model.Event, 0, len(names))
	for _, name := range names {
		if e := model.ParseEvent(name); e != "" && !slices.Contains(events, e) {
			events = append(events, e)
		}
	}
	return events
}
