// Package poller fetches area and alert snapshots over REST while the
// realtime feed is unavailable.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// Source is the subset of the REST client the poller needs.
type Source interface {
	ListAreas(ctx context.Context) ([]model.Area, error)
	ActiveAlerts(ctx context.Context) ([]model.Alert, error)
}

// Snapshot is the result of one poll.
type Snapshot struct {
	Areas     []model.Area
	Alerts    []model.Alert
	FetchedAt time.Time
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(snapshot Snapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(Snapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s Snapshot) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 5s)
	Concurrency int           // Max concurrent requests per poll (default: 2)
	Timeout     time.Duration // Per-poll timeout (default: 8s)
}

// DefaultConfig returns the dashboard's refresh settings.
func DefaultConfig() Config {
	return Config{
		Interval:    constants.DefaultPollInterval,
		Concurrency: constants.DefaultPollConcurrency,
		Timeout:     constants.DefaultPollTimeout,
	}
}

// Poller periodically fetches snapshots. A gate, when set, is checked before
// every poll; polls are skipped while it returns false.
type Poller struct {
	cfg     Config
	source  Source
	handler SnapshotHandler
	gate    func() bool
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new Poller. gate may be nil to always poll.
func New(cfg Config, source Source, handler SnapshotHandler, gate func() bool, log *logger.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		gate:    gate,
		log:     log.With("poller"),
	}
}

// Start begins the polling loop. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.log.Debug("Snapshot poller started", "interval", p.cfg.Interval)
}

// Stop ends the polling loop and waits for it, bounded by ctx. Stopping a
// stopped poller is a no-op.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		p.log.Debug("Snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.gate != nil && !p.gate() {
		return
	}
	if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn("Poll failed", "error", err)
	}
}

// PollOnce fetches areas and active alerts concurrently and hands the
// snapshot to the handler. Nothing is handed over when either call fails.
func (p *Poller) PollOnce(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	g.Go(func() error {
		areas, err := p.source.ListAreas(gctx)
		snap.Areas = areas
		return err
	})
	g.Go(func() error {
		alerts, err := p.source.ActiveAlerts(gctx)
		snap.Alerts = alerts
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("polling snapshot: %w", err)
	}
	snap.FetchedAt = time.Now()

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(snap); err != nil {
			return fmt.Errorf("handling snapshot: %w", err)
		}
	}

	p.log.Debug("Poll complete",
		"areas", len(snap.Areas),
		"alerts", len(snap.Alerts),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}
