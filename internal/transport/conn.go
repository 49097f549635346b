// Package transport carries STOMP frames over a WebSocket, either raw (the
// v1x.stomp subprotocols) or wrapped in the SockJS WebSocket transport used by
// Spring's /ws endpoint. It knows nothing about subscriptions or reconnects.
package transport

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/crowdpulse/crowdfeed/internal/stomp"
)

// DefaultReadLimit caps a single inbound WebSocket message.
const DefaultReadLimit = 1 << 20 // 1 MiB

// stompSubprotocols are offered on raw WebSocket dials.
var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Options configures a Dial.
type Options struct {
	// URL is the endpoint, e.g. http://localhost:8080/ws. http and https
	// are rewritten to ws and wss.
	URL string
	// SockJS selects the SockJS WebSocket transport. The session URL is
	// derived from URL.
	SockJS bool
	// Header is sent with the opening handshake.
	Header http.Header
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Conn is an established WebSocket carrying STOMP frames. ReadFrame must only
// be called from one goroutine; WriteFrame and Close are safe to call
// concurrently.
type Conn struct {
	ws     *websocket.Conn
	sockJS bool

	wmu sync.Mutex

	pending  []*stomp.Frame
	deferred error
}

// Dial opens a connection to the STOMP endpoint. For SockJS it also waits
// for the open frame.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	target, err := websocketURL(opts.URL)
	if err != nil {
		return nil, err
	}

	dialOpts := &websocket.DialOptions{HTTPHeader: opts.Header}
	if opts.SockJS {
		target, err = sockJSURL(target, rand.IntN(1000), newSessionID())
		if err != nil {
			return nil, err
		}
	} else {
		dialOpts.Subprotocols = stompSubprotocols
	}

	ws, _, err := websocket.Dial(ctx, target, dialOpts)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)

	c := &Conn{ws: ws, sockJS: opts.SockJS}
	if opts.SockJS {
		if err := c.awaitOpen(ctx); err != nil {
			ws.CloseNow() //nolint:errcheck
			return nil, err
		}
	}

	return c, nil
}

// ReadFrame returns the next inbound frame. SockJS heart-beats and STOMP
// EOLs come back as heart-beat frames. An undecodable payload yields an error
// wrapping stomp.ErrMalformedFrame; the connection stays usable after it.
func (c *Conn) ReadFrame(ctx context.Context) (*stomp.Frame, error) {
	for len(c.pending) == 0 {
		if c.deferred != nil {
			err := c.deferred
			c.deferred = nil
			return nil, err
		}

		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading websocket: %w", err)
		}

		frames, err := c.decode(data)
		c.pending = append(c.pending, frames...)
		if err != nil {
			if len(c.pending) == 0 {
				return nil, err
			}
			c.deferred = err
		}
	}

	f := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	return f, nil
}

// WriteFrame sends a single frame.
func (c *Conn) WriteFrame(ctx context.Context, f *stomp.Frame) error {
	data := f.Encode()
	if c.sockJS {
		var err error
		if data, err = encodeSockJS(data); err != nil {
			return err
		}
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("writing websocket: %w", err)
	}
	return nil
}

// Close closes the WebSocket with a normal closure status.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "closing")
}

func (c *Conn) decode(data []byte) ([]*stomp.Frame, error) {
	if c.sockJS {
		return decodeSockJS(data)
	}
	return stomp.Decode(data)
}

func (c *Conn) awaitOpen(ctx context.Context) error {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return fmt.Errorf("waiting for sockjs open frame: %w", err)
	}
	if len(data) == 1 && data[0] == 'o' {
		return nil
	}
	if len(data) > 0 && data[0] == 'c' {
		if _, err := decodeSockJS(data); err != nil {
			return err
		}
	}
	return fmt.Errorf("unexpected sockjs greeting %q", truncate(data, 64))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
