// Package monitor wires the realtime feed, the REST client, the live state
// store, the polling fallback, notifications and the optional relay into a
// single crowd monitor.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdpulse/crowdfeed/internal/analytics"
	"github.com/crowdpulse/crowdfeed/internal/api"
	"github.com/crowdpulse/crowdfeed/internal/config"
	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/livestate"
	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/notify"
	"github.com/crowdpulse/crowdfeed/internal/poller"
	"github.com/crowdpulse/crowdfeed/internal/realtime"
	"github.com/crowdpulse/crowdfeed/internal/relay"
	"github.com/crowdpulse/crowdfeed/internal/transport"
)

// predictionTTL is how long a computed prediction is served from cache.
const predictionTTL = time.Minute

// Monitor keeps the live state of every watched area current.
type Monitor struct {
	cfg *config.Config
	log *logger.Logger

	api       *api.Client
	feed      *realtime.Client
	store     *livestate.Store
	notify    *notify.Dispatcher
	poller    *poller.Poller
	predictor *analytics.Predictor
	relay     *relay.Relay
	relayPub  relay.Publisher

	running atomic.Bool
	primed  atomic.Bool
	// failed is signalled when the feed gives up a connect cycle.
	failed chan struct{}
	// runCtx is the context of Run, used by feed callbacks.
	runCtx atomic.Pointer[context.Context]
}

// Option customizes a Monitor.
type Option func(*Monitor) error

// WithDialer replaces the WebSocket dialer of the feed.
func WithDialer(d realtime.Dialer) Option {
	return func(m *Monitor) error {
		m.feed = realtime.NewClient(feedConfig(m.cfg.Feed, m.cfg.Backend), d, m.log)
		return nil
	}
}

// WithRelayPublisher relays through pub instead of connecting to Redis.
func WithRelayPublisher(pub relay.Publisher) Option {
	return func(m *Monitor) error {
		m.relayPub = pub
		return nil
	}
}

// WithDispatcher replaces the notification dispatcher built from config.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(m *Monitor) error {
		m.notify = d
		return nil
	}
}

// New builds a monitor from a validated configuration.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Monitor, error) {
	if log == nil {
		log = logger.Nop()
	}

	client, err := api.NewClient(cfg.Backend.APIURL, log, api.WithUserEmail(cfg.Backend.UserEmail))
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	m := &Monitor{
		cfg:    cfg,
		log:    log.With("monitor"),
		api:    client,
		store:  livestate.NewStore(),
		failed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.feed == nil {
		header := http.Header{}
		header.Set("User-Agent", constants.UserAgent)
		if cfg.Backend.UserEmail != "" {
			header.Set(constants.UserEmailHeader, cfg.Backend.UserEmail)
		}
		dialer := realtime.NewWebSocketDialer(transport.Options{
			URL:    cfg.Feed.URL,
			SockJS: cfg.Feed.UseSockJS(),
			Header: header,
		})
		m.feed = realtime.NewClient(feedConfig(cfg.Feed, cfg.Backend), dialer, log)
	}
	if m.notify == nil {
		m.notify = notify.NewDispatcher(cfg.Notifications, log)
	}

	m.predictor = analytics.NewPredictor(client, constants.PredictionWindow, cfg.Poll.Concurrency, predictionTTL, log)
	m.poller = poller.New(poller.Config{
		Interval:    cfg.Poll.Interval,
		Concurrency: cfg.Poll.Concurrency,
		Timeout:     cfg.Poll.Timeout,
	}, client, poller.SnapshotHandlerFunc(m.handlePoll), m.feedDown, log)

	m.feed.OnStateChange(m.onFeedState)
	m.feed.OnError(func(err error) {
		m.log.Warn("Feed gave up", "error", err)
	})
	return m, nil
}

// feedConfig maps the YAML feed section onto the realtime client settings.
func feedConfig(f config.FeedConfig, b config.BackendConfig) realtime.Config {
	rc := realtime.DefaultConfig()
	rc.HeartbeatOutgoing = f.HeartbeatOutgoing
	rc.HeartbeatIncoming = f.HeartbeatIncoming
	if f.ConnectTimeout > 0 {
		rc.ConnectTimeout = f.ConnectTimeout
	}
	if f.MaxReconnectAttempts != nil {
		rc.MaxReconnectAttempts = *f.MaxReconnectAttempts
	}
	if b.UserEmail != "" {
		rc.Headers = map[string]string{constants.UserEmailHeader: b.UserEmail}
	}

	delay := f.ReconnectDelay
	if delay <= 0 {
		delay = constants.DefaultReconnectDelay
	}
	switch f.Backoff {
	case config.BackoffExponential:
		eb := realtime.NewExponentialBackoff()
		eb.Initial = delay
		rc.Backoff = eb
	default:
		rc.Backoff = realtime.FixedBackoff(delay)
	}
	return rc
}

// Store exposes the live state.
func (m *Monitor) Store() *livestate.Store { return m.store }

// Feed exposes the realtime client.
func (m *Monitor) Feed() *realtime.Client { return m.feed }

// Predictor exposes the prediction cache.
func (m *Monitor) Predictor() *analytics.Predictor { return m.predictor }

// Notifier exposes the notification dispatcher.
func (m *Monitor) Notifier() *notify.Dispatcher { return m.notify }

// FeedState returns the current feed connection state.
func (m *Monitor) FeedState() realtime.State { return m.feed.State() }

// FeedStats returns the feed delivery counters.
func (m *Monitor) FeedStats() realtime.Stats { return m.feed.Stats() }

// Predict returns the next-hour prediction for an area.
func (m *Monitor) Predict(ctx context.Context, areaID int64) (analytics.Prediction, error) {
	return m.predictor.Predict(ctx, areaID)
}

// IsRunning reports whether Run has finished starting up and not returned.
func (m *Monitor) IsRunning() bool { return m.running.Load() }

func (m *Monitor) ctx() context.Context {
	if p := m.runCtx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func (m *Monitor) feedDown() bool {
	return !m.feed.IsConnected()
}

// Run performs the full lifecycle:
//  1. Login when credentials are configured
//  2. Start the relay (if enabled)
//  3. Load an initial REST snapshot
//  4. Subscribe to the feed topics
//  5. Connect, falling back to polling and retrying after recover_after
//
// It returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.running.Store(false)
	m.runCtx.Store(&ctx)
	m.log.SetNotifyFunc(m.notify.NotifyFunc())

	startTime := time.Now()
	m.log.Info("🚀 Starting crowd monitor", "api", m.cfg.Backend.APIURL, "feed", m.cfg.Feed.URL)

	if err := m.login(ctx); err != nil {
		return err
	}

	if err := m.startRelay(ctx); err != nil {
		return err
	}

	if err := m.poller.PollOnce(ctx); err != nil {
		m.log.Warn("Initial snapshot failed, relying on the feed", "error", err)
	} else {
		m.log.Info("📋 Initial snapshot loaded", "areas", len(m.store.Areas()))
	}

	if err := m.subscribe(); err != nil {
		return fmt.Errorf("subscribing to feed topics: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.runFeed(gctx)
	})

	if m.cfg.Poll.IsEnabled() {
		g.Go(func() error {
			m.poller.Start(gctx)
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return m.poller.Stop(stopCtx)
		})
	}

	m.running.Store(true)
	m.log.Info("✅ Monitor started",
		"subscriptions", m.feed.Stats().Subscriptions,
		"notifiers", len(m.notify.Names()),
		"startup_duration", time.Since(startTime).Round(time.Millisecond),
	)

	err := g.Wait()
	m.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Monitor) login(ctx context.Context) error {
	b := m.cfg.Backend
	if !b.HasCredentials() {
		return nil
	}
	if _, err := m.api.Login(ctx, b.Username, b.Password); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return fmt.Errorf("login failed for %s: %w", b.Username, err)
		}
		m.log.Warn("Login failed, continuing without a session", "error", err)
		return nil
	}
	m.log.Info("🔑 Logged in", "user", b.Username)
	return nil
}

func (m *Monitor) startRelay(ctx context.Context) error {
	if !m.cfg.Relay.Enabled && m.relayPub == nil {
		return nil
	}

	pub := m.relayPub
	if pub == nil {
		rp, err := relay.NewRedisPublisher(ctx, m.cfg.Relay)
		if err != nil {
			return fmt.Errorf("starting relay: %w", err)
		}
		pub = rp
	}

	m.relay = relay.New(pub, m.cfg.Relay.Prefix, m.handleRemote, m.log)
	if err := m.relay.Start(ctx); err != nil {
		pub.Close() //nolint:errcheck
		m.relay = nil
		return fmt.Errorf("starting relay: %w", err)
	}
	return nil
}

// runFeed connects the feed and, whenever a connect cycle fails, waits
// recover_after before starting a new one.
func (m *Monitor) runFeed(ctx context.Context) error {
	for {
		err := m.feed.Connect(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
			// The failure signal may be stale; the feed's state is what counts.
			for m.feed.State() != realtime.StateFailed {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-m.failed:
				}
			}
		case errors.Is(err, realtime.ErrDisconnected):
			return err
		default:
			m.log.Warn("Feed connect failed", "error", err)
		}

		wait := m.cfg.Feed.RecoverAfter
		if wait <= 0 {
			wait = constants.DefaultRecoverAfter
		}
		m.log.Info("Retrying feed later", "in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Monitor) shutdown() {
	m.feed.Disconnect()
	if m.relay != nil {
		if err := m.relay.Stop(); err != nil {
			m.log.Debug("Relay stop failed", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		m.notify.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.log.Warn("Pending notifications abandoned")
	}

	m.log.Info("🛑 Monitor stopped")
}
