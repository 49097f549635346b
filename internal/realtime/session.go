package realtime

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/stomp"
)

// session is one established STOMP connection. It lives from CONNECTED until
// the transport fails or the client disconnects.
type session struct {
	conn Conn
	out  chan *stomp.Frame

	send, expect time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc

	lastRead atomic.Int64
	// detached is set under Client.mu when Disconnect takes over closing conn.
	detached bool
}

func newSession(parent context.Context, conn Conn, queue int, send, expect time.Duration) *session {
	ctx, cancel := context.WithCancelCause(parent)
	s := &session{
		conn:   conn,
		out:    make(chan *stomp.Frame, queue),
		send:   send,
		expect: expect,
		ctx:    ctx,
		cancel: cancel,
	}
	s.touch()
	return s
}

func (s *session) abort(err error) { s.cancel(err) }

func (s *session) touch() { s.lastRead.Store(time.Now().UnixNano()) }

func (s *session) idle() time.Duration {
	return time.Since(time.Unix(0, s.lastRead.Load()))
}

// session runs a single connection attempt and, when it succeeds, serves it
// until it ends. The returned error is the reason the attempt or session
// ended.
func (c *Client) session(ctx context.Context, gen uint64) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx)
	if err != nil {
		return fmt.Errorf("dialing feed: %w", err)
	}

	send, expect, err := c.handshake(dialCtx, conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return err
	}

	sess := c.activate(ctx, gen, conn, send, expect)
	if sess == nil {
		conn.Close() //nolint:errcheck
		return ErrDisconnected
	}
	defer sess.cancel(nil)
	c.flushCallbacks()

	err = c.serve(sess)

	c.mu.Lock()
	detached := sess.detached
	c.mu.Unlock()
	if !detached {
		conn.Close() //nolint:errcheck
	}
	return err
}

// handshake sends CONNECT and waits for CONNECTED, returning the negotiated
// heart-beat intervals.
func (c *Client) handshake(ctx context.Context, conn Conn) (send, expect time.Duration, err error) {
	offer := stomp.HeartBeat{Send: c.cfg.HeartbeatOutgoing, Receive: c.cfg.HeartbeatIncoming}

	f := stomp.NewFrame(stomp.CmdConnect,
		stomp.HdrAcceptVersion, constants.StompVersions,
		stomp.HdrHeartBeat, offer.String(),
	)
	if c.cfg.Host != "" {
		f.Headers[stomp.HdrHost] = c.cfg.Host
	}
	if c.cfg.Login != "" {
		f.Headers[stomp.HdrLogin] = c.cfg.Login
		f.Headers[stomp.HdrPasscode] = c.cfg.Passcode
	}
	for k, v := range c.cfg.Headers {
		if _, ok := f.Headers[k]; !ok {
			f.Headers[k] = v
		}
	}

	if err := conn.WriteFrame(ctx, f); err != nil {
		return 0, 0, fmt.Errorf("sending CONNECT: %w", err)
	}

	for {
		reply, err := conn.ReadFrame(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("awaiting CONNECTED: %w", err)
		}

		switch reply.Command {
		case "":
			continue
		case stomp.CmdConnected:
			server, err := stomp.ParseHeartBeat(reply.Header(stomp.HdrHeartBeat))
			if err != nil {
				c.log.Warn("Ignoring server heart-beat header", "error", err)
			}
			send, expect = stomp.Negotiate(offer, server)
			c.log.Debug("STOMP session established",
				"version", reply.Header(stomp.HdrVersion), "send", send, "expect", expect)
			return send, expect, nil
		case stomp.CmdError:
			return 0, 0, stomp.ServerErrorFromFrame(reply)
		default:
			return 0, 0, fmt.Errorf("unexpected %s frame during handshake", reply.Command)
		}
	}
}

// activate publishes a freshly connected session: it replays every live
// subscription onto the outbound queue in id order and only then reports
// CONNECTED. It returns nil when the cycle was abandoned by Disconnect.
func (c *Client) activate(ctx context.Context, gen uint64, conn Conn, send, expect time.Duration) *session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return nil
	}

	subs := slices.SortedFunc(maps.Values(c.subs), func(a, b *subscription) int {
		return cmp.Compare(a.id, b.id)
	})

	sess := newSession(ctx, conn, max(constants.OutboundQueueSize, 2*len(subs)), send, expect)
	for _, s := range subs {
		sess.out <- s.subscribeFrame()
	}

	c.sess = sess
	c.attempts = 0
	c.cfg.Backoff.Reset()
	c.lastConnected = time.Now()
	c.setStateLocked(StateConnected)
	c.resolveCycleLocked(nil)

	c.log.Info("Connected to feed", "subscriptions", len(subs))
	return sess
}

// serve runs the session's goroutines until the first of them fails or the
// session is cancelled.
func (c *Client) serve(sess *session) error {
	g, ctx := errgroup.WithContext(sess.ctx)

	g.Go(func() error { return c.readLoop(ctx, sess) })
	g.Go(func() error { return c.writeLoop(ctx, sess) })
	if sess.send > 0 {
		g.Go(func() error { return c.heartbeatLoop(ctx, sess) })
	}
	if sess.expect > 0 {
		g.Go(func() error { return c.watchdog(ctx, sess) })
	}

	err := g.Wait()
	if cause := context.Cause(sess.ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, sess *session) error {
	for {
		f, err := sess.conn.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, stomp.ErrMalformedFrame) && ctx.Err() == nil {
				sess.touch()
				c.dropped.Add(1)
				c.log.Warn("Dropping malformed frame", "error", err)
				continue
			}
			return err
		}
		sess.touch()

		switch f.Command {
		case "":
		case stomp.CmdMessage:
			c.dispatch(f)
		case stomp.CmdError:
			return stomp.ServerErrorFromFrame(f)
		case stomp.CmdReceipt:
			c.log.Debug("Receipt", "id", f.Header(stomp.HdrReceiptID))
		default:
			c.log.Debug("Ignoring frame", "command", f.Command)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, sess *session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-sess.out:
			wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := sess.conn.WriteFrame(wctx, f)
			cancel()
			if err != nil {
				return fmt.Errorf("writing %s: %w", f, err)
			}
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, sess *session) error {
	ticker := time.NewTicker(sess.send)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case sess.out <- stomp.Heartbeat():
			default:
			}
		}
	}
}

// watchdog ends the session when nothing has been read for
// HeartbeatTolerance times the negotiated incoming interval.
func (c *Client) watchdog(ctx context.Context, sess *session) error {
	limit := sess.expect * constants.HeartbeatTolerance
	ticker := time.NewTicker(max(sess.expect/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if idle := sess.idle(); idle > limit {
				c.log.Warn("No traffic from broker", "idle", idle.Round(time.Millisecond), "limit", limit)
				return ErrHeartbeatTimeout
			}
		}
	}
}

// dispatch delivers a MESSAGE frame synchronously, which keeps per-topic
// order.
func (c *Client) dispatch(f *stomp.Frame) {
	topic := f.Header(stomp.HdrDestination)

	if !json.Valid(f.Body) {
		c.dropped.Add(1)
		c.log.Warn("Dropping non-JSON message", "topic", topic, "bytes", len(f.Body))
		return
	}

	targets := c.route(f.Header(stomp.HdrSubscription), topic)
	if len(targets) == 0 {
		c.unrouted.Add(1)
		c.log.Debug("No subscription for message", "topic", topic)
		return
	}

	msg := Message{
		Topic:      topic,
		Payload:    json.RawMessage(f.Body),
		Headers:    f.Headers,
		ReceivedAt: time.Now(),
	}
	for _, s := range targets {
		c.deliver(s, msg)
	}
}

// route resolves the subscriptions a message belongs to. A subscription
// header naming one of ours is authoritative, even if that subscription is
// gone. Without one, every subscription on the destination gets it.
func (c *Client) route(subHeader, topic string) []*subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := parseWireID(subHeader); ok {
		if s, ok := c.subs[id]; ok {
			return []*subscription{s}
		}
		return nil
	}

	var out []*subscription
	for _, s := range c.subs {
		if s.topic == topic {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *subscription) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (c *Client) deliver(s *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.log.Error("Subscription handler panicked",
				"topic", s.topic, "subscription", s.id.wire(), "panic", r)
		}
	}()
	s.handler(msg)
	c.delivered.Add(1)
}
