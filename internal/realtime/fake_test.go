package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/crowdpulse/crowdfeed/internal/stomp"
)

var errConnClosed = errors.New("fake connection closed")

type readResult struct {
	frame *stomp.Frame
	err   error
}

// fakeConn is an in-memory broker connection. It answers CONNECT on its own
// and records everything the client writes.
type fakeConn struct {
	in        chan readResult
	closed    chan struct{}
	closeOnce sync.Once
	reply     *stomp.Frame
	// stalled blocks every write after CONNECT until ctx or the connection ends.
	stalled bool

	mu     sync.Mutex
	writes []*stomp.Frame
}

func newFakeConn(reply *stomp.Frame) *fakeConn {
	return &fakeConn{
		in:     make(chan readResult, 64),
		closed: make(chan struct{}),
		reply:  reply,
	}
}

func (c *fakeConn) ReadFrame(ctx context.Context) (*stomp.Frame, error) {
	select {
	case r := <-c.in:
		return r.frame, r.err
	case <-c.closed:
		return nil, errConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteFrame(ctx context.Context, f *stomp.Frame) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	if c.stalled && f.Command != stomp.CmdConnect {
		select {
		case <-c.closed:
			return errConnClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.writes = append(c.writes, f)
	c.mu.Unlock()

	if f.Command == stomp.CmdConnect && c.reply != nil {
		c.in <- readResult{frame: c.reply}
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the broker going away.
func (c *fakeConn) drop() { c.Close() } //nolint:errcheck

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(f *stomp.Frame) { c.in <- readResult{frame: f} }

func (c *fakeConn) pushErr(err error) { c.in <- readResult{err: err} }

func (c *fakeConn) message(destination, subID, body string) {
	f := stomp.NewFrame(stomp.CmdMessage, stomp.HdrDestination, destination, stomp.HdrMessageID, "m")
	if subID != "" {
		f.Headers[stomp.HdrSubscription] = subID
	}
	f.Body = []byte(body)
	c.push(f)
}

func (c *fakeConn) written(command string) []*stomp.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*stomp.Frame
	for _, f := range c.writes {
		if f.Command == command {
			out = append(out, f)
		}
	}
	return out
}

// subscribed returns the destinations of SUBSCRIBE frames in write order.
func (c *fakeConn) subscribed() []string {
	var out []string
	for _, f := range c.written(stomp.CmdSubscribe) {
		out = append(out, f.Header(stomp.HdrDestination))
	}
	return out
}

// subID returns the wire id the client used for destination.
func (c *fakeConn) subID(destination string) string {
	for _, f := range c.written(stomp.CmdSubscribe) {
		if f.Header(stomp.HdrDestination) == destination {
			return f.Header(stomp.HdrID)
		}
	}
	return ""
}

// fakeDialer hands out fakeConns. fail, when set, decides per dial (1-based)
// whether that attempt errors out; it may block.
type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	conns     []*fakeConn
	fail      func(n int) error
	heartBeat string
	reply     func(n int) *stomp.Frame
	stall     func(n int) bool
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	fail, reply, stall := d.fail, d.reply, d.stall
	d.mu.Unlock()

	if fail != nil {
		if err := fail(n); err != nil {
			return nil, err
		}
	}

	connected := stomp.NewFrame(stomp.CmdConnected, stomp.HdrVersion, "1.2", stomp.HdrHeartBeat, d.heartBeatHeader())
	if reply != nil {
		connected = reply(n)
	}

	conn := newFakeConn(connected)
	conn.stalled = stall != nil && stall(n)
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) heartBeatHeader() string {
	if d.heartBeat == "" {
		return "0,0"
	}
	return d.heartBeat
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// recorder collects handler invocations.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = string(m.Payload)
	}
	return out
}
