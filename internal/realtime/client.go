// Package realtime implements the live occupancy feed client: a single STOMP
// session to the backend broker that multiplexes topic subscriptions,
// survives transport failures by reconnecting and replaying every live
// subscription, and delivers decoded events to registered handlers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/stomp"
)

var (
	// ErrRetriesExhausted is returned by Connect once the retry budget of a
	// connect cycle is spent. The last attempt's error is wrapped with it.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	// ErrDisconnected is returned to Connect callers released by Disconnect.
	ErrDisconnected = errors.New("client disconnected")
	// ErrInvalidTopic rejects empty topics and topics with NUL, CR or LF.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrNilHandler rejects a nil subscription handler.
	ErrNilHandler = errors.New("nil handler")
	// ErrHeartbeatTimeout ends a session that went silent.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

var errOutboundFull = errors.New("outbound queue full")

// SubscriptionID identifies a subscription for the lifetime of a Client.
type SubscriptionID uint64

func (id SubscriptionID) wire() string {
	return "sub-" + strconv.FormatUint(uint64(id), 10)
}

func parseWireID(s string) (SubscriptionID, bool) {
	rest, ok := strings.CutPrefix(s, "sub-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return SubscriptionID(n), true
}

// Message is one event delivered to a subscription handler.
type Message struct {
	Topic      string
	Payload    json.RawMessage
	Headers    map[string]string
	ReceivedAt time.Time
}

// Handler receives the events of one subscription, in arrival order.
type Handler func(Message)

// Stats is a snapshot of the client's counters.
type Stats struct {
	Delivered     uint64
	Dropped       uint64
	Unrouted      uint64
	HandlerPanics uint64
	Reconnects    uint64
	Subscriptions int
	LastConnected time.Time
}

type subscription struct {
	id      SubscriptionID
	topic   string
	handler Handler
}

func (s *subscription) subscribeFrame() *stomp.Frame {
	return stomp.NewFrame(stomp.CmdSubscribe,
		stomp.HdrID, s.id.wire(),
		stomp.HdrDestination, s.topic,
		stomp.HdrAck, "auto",
	)
}

// connectCycle is shared by every Connect call waiting on the same run of
// attempts.
type connectCycle struct {
	done chan struct{}
	err  error
}

func newConnectCycle() *connectCycle {
	return &connectCycle{done: make(chan struct{})}
}

// callback is a queued state or error notification.
type callback struct {
	from, to State
	err      error
}

// Client is the realtime feed client. All methods are safe for concurrent use.
type Client struct {
	cfg    Config
	dialer Dialer
	log    *logger.Logger

	mu            sync.Mutex
	state         State
	attempts      int
	subs          map[SubscriptionID]*subscription
	nextID        SubscriptionID
	sess          *session
	cycle         *connectCycle
	gen           uint64
	cancelRun     context.CancelFunc
	lastConnected time.Time
	onState       []func(from, to State)
	onError       []func(error)
	pending       []callback

	// notifyMu is held by whichever goroutine is draining pending.
	notifyMu sync.Mutex

	delivered  atomic.Uint64
	dropped    atomic.Uint64
	unrouted   atomic.Uint64
	panics     atomic.Uint64
	reconnects atomic.Uint64
}

// NewClient creates a disconnected client. Nothing is dialed until Connect.
func NewClient(cfg Config, dialer Dialer, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:    cfg.withDefaults(),
		dialer: dialer,
		log:    log.With("feed"),
		subs:   make(map[SubscriptionID]*subscription),
	}
}

// Connect starts a connect cycle, or joins the one in flight, and waits for
// its outcome. It returns nil once the client is CONNECTED. ctx only bounds
// the wait: the attempt carries on in the background when it expires.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateDisconnected, StateFailed:
		c.startCycleLocked()
	}
	cycle := c.cycle
	c.mu.Unlock()
	c.flushCallbacks()

	select {
	case <-cycle.done:
		return cycle.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers h for topic. It never blocks on the network: when the
// client is not CONNECTED the subscription is sent on the next successful
// connect. If the outbound queue is full the session is restarted, which
// replays the table; that restart does not count against the retry budget.
func (c *Client) Subscribe(topic string, h Handler) (SubscriptionID, error) {
	if topic == "" || strings.ContainsAny(topic, "\x00\r\n") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if h == nil {
		return 0, ErrNilHandler
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	s := &subscription{id: c.nextID, topic: topic, handler: h}
	c.subs[s.id] = s

	if c.state == StateConnected && c.sess != nil {
		select {
		case c.sess.out <- s.subscribeFrame():
		default:
			// Restarting the session replays the subscription from the table.
			c.log.Warn("Outbound queue full, restarting session", "topic", topic)
			c.sess.abort(errOutboundFull)
		}
	}

	c.log.Debug("Subscribed", "topic", topic, "subscription", s.id.wire())
	return s.id, nil
}

// Unsubscribe removes a subscription. Unknown or already removed ids are
// ignored. Once it returns, no frame read afterwards reaches the handler.
// A full outbound queue restarts the session as in Subscribe.
func (c *Client) Unsubscribe(id SubscriptionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)

	if c.state == StateConnected && c.sess != nil {
		select {
		case c.sess.out <- stomp.NewFrame(stomp.CmdUnsubscribe, stomp.HdrID, id.wire()):
		default:
			// The replay after the restart leaves the removed subscription out.
			c.log.Warn("Outbound queue full, restarting session", "topic", s.topic)
			c.sess.abort(errOutboundFull)
		}
	}

	c.log.Debug("Unsubscribed", "topic", s.topic, "subscription", id.wire())
}

// Disconnect tears the connection down, drops every subscription and
// releases pending Connect calls with ErrDisconnected. It is safe in any
// state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sess := c.sess
	if sess != nil {
		sess.detached = true
	}
	c.sess = nil
	clear(c.subs)
	c.gen++
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.attempts = 0
	c.resolveCycleLocked(ErrDisconnected)
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	c.flushCallbacks()

	if sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DisconnectTimeout)
	defer cancel()
	if err := sess.conn.WriteFrame(ctx, stomp.NewFrame(stomp.CmdDisconnect)); err != nil {
		c.log.Debug("Sending DISCONNECT failed", "error", err)
	}
	sess.conn.Close() //nolint:errcheck
	c.log.Info("Disconnected")
}

// IsConnected reports whether the client is CONNECTED.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called after every state transition, in
// order. fn runs outside the client's lock and may call back into it.
func (c *Client) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// OnError registers fn to be called when a connect cycle gives up.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	subs, last := len(c.subs), c.lastConnected
	c.mu.Unlock()

	return Stats{
		Delivered:     c.delivered.Load(),
		Dropped:       c.dropped.Load(),
		Unrouted:      c.unrouted.Load(),
		HandlerPanics: c.panics.Load(),
		Reconnects:    c.reconnects.Load(),
		Subscriptions: subs,
		LastConnected: last,
	}
}

func (c *Client) startCycleLocked() {
	c.attempts = 0
	c.cfg.Backoff.Reset()
	c.gen++

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.cycle = newConnectCycle()
	c.setStateLocked(StateConnecting)

	go c.run(ctx, c.gen)
}

func (c *Client) resolveCycleLocked(err error) {
	if c.cycle == nil {
		return
	}
	c.cycle.err = err
	close(c.cycle.done)
	c.cycle = nil
}

func (c *Client) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.pending = append(c.pending, callback{from: from, to: to})
}

// flushCallbacks runs queued callbacks outside c.mu. Only one goroutine
// drains at a time, so callbacks observe transitions in order; a callback
// that re-enters the client leaves its own transitions for the outer drain.
func (c *Client) flushCallbacks() {
	for {
		if !c.notifyMu.TryLock() {
			return
		}

		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		onState := slices.Clone(c.onState)
		onError := slices.Clone(c.onError)
		c.mu.Unlock()

		for _, cb := range batch {
			if cb.err != nil {
				for _, fn := range onError {
					c.safeCall(func() { fn(cb.err) })
				}
				continue
			}
			c.log.Info("Feed state changed", "from", cb.from.String(), "state", cb.to.String())
			for _, fn := range onState {
				c.safeCall(func() { fn(cb.from, cb.to) })
			}
		}
		c.notifyMu.Unlock()

		c.mu.Lock()
		more := len(c.pending) > 0
		c.mu.Unlock()
		if !more {
			return
		}
	}
}

func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Callback panicked", "panic", r)
		}
	}()
	fn()
}

// run drives one connect cycle and the sessions that follow it until the
// retry budget is spent or ctx is cancelled by Disconnect.
func (c *Client) run(ctx context.Context, gen uint64) {
	for {
		err := c.session(ctx, gen)
		if ctx.Err() != nil {
			return
		}

		delay, retry := c.handleFailure(gen, err)
		c.flushCallbacks()
		if !retry {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) handleFailure(gen uint64, err error) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return 0, false
	}
	c.sess = nil

	// Restarts forced by a full outbound queue are not broker failures.
	overflow := errors.Is(err, errOutboundFull)

	limit := c.cfg.MaxReconnectAttempts
	if !overflow && limit >= 0 && c.attempts >= limit {
		failure := fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		c.log.Error("Giving up on feed", "attempts", c.attempts+1, "error", err)
		c.setStateLocked(StateFailed)
		c.pending = append(c.pending, callback{err: failure})
		c.resolveCycleLocked(failure)
		if c.cancelRun != nil {
			c.cancelRun()
			c.cancelRun = nil
		}
		return 0, false
	}

	if !overflow {
		c.attempts++
	}
	c.reconnects.Add(1)
	if c.cycle == nil {
		c.cycle = newConnectCycle()
	}
	c.setStateLocked(StateReconnecting)

	delay := c.cfg.Backoff.Next()
	c.log.Warn("Feed connection lost, reconnecting",
		"error", err, "attempt", c.attempts, "delay", delay)
	return delay, true
}
