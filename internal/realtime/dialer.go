package realtime

import (
	"context"

	"github.com/crowdpulse/crowdfeed/internal/stomp"
	"github.com/crowdpulse/crowdfeed/internal/transport"
)

// Conn is a frame-level connection to the broker. ReadFrame is only called
// from one goroutine at a time; WriteFrame and Close may be called
// concurrently with it and with each other.
type Conn interface {
	ReadFrame(ctx context.Context) (*stomp.Frame, error)
	WriteFrame(ctx context.Context, f *stomp.Frame) error
	Close() error
}

// Dialer opens a new Conn for each connection attempt.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// NewWebSocketDialer dials the broker over WebSocket, with or without SockJS
// framing depending on opts.
func NewWebSocketDialer(opts transport.Options) Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) {
		c, err := transport.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}
