package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdpulse/crowdfeed/internal/config"
)

// respServer speaks enough RESP2 for PING, PUBLISH and SUBSCRIBE. Anything
// else gets an error reply, which go-redis treats as an older server.
type respServer struct {
	ln net.Listener

	mu     sync.Mutex
	subs   map[string][]*respConn
	conns  map[*respConn]struct{}
	denied map[string]bool
}

type respConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *respConn) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.Write([]byte(s)) //nolint:errcheck
}

func newRESPServer(t *testing.T) *respServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &respServer{
		ln:     ln,
		subs:   map[string][]*respConn{},
		conns:  map[*respConn]struct{}{},
		denied: map[string]bool{},
	}
	go s.accept()
	t.Cleanup(s.close)
	return s
}

func (s *respServer) addr() string { return s.ln.Addr().String() }

func (s *respServer) deny(channel string) {
	s.mu.Lock()
	s.denied[channel] = true
	s.mu.Unlock()
}

func (s *respServer) subscribers(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[channel])
}

func (s *respServer) close() {
	s.ln.Close() //nolint:errcheck
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.conn.Close() //nolint:errcheck
	}
}

func (s *respServer) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		c := &respConn{conn: conn}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.serve(c)
	}
}

func (s *respServer) serve(c *respConn) {
	defer s.drop(c)

	r := bufio.NewReader(c.conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		s.exec(c, args)
	}
}

func (s *respServer) exec(c *respConn, args []string) {
	switch strings.ToUpper(args[0]) {
	case "PING":
		c.write("+PONG\r\n")
	case "PUBLISH":
		if len(args) != 3 {
			c.write("-ERR wrong number of arguments\r\n")
			return
		}
		s.mu.Lock()
		targets := append([]*respConn(nil), s.subs[args[1]]...)
		s.mu.Unlock()
		for _, sub := range targets {
			sub.write("*3\r\n" + bulk("message") + bulk(args[1]) + bulk(args[2]))
		}
		c.write(":" + strconv.Itoa(len(targets)) + "\r\n")
	case "SUBSCRIBE":
		for i, ch := range args[1:] {
			s.mu.Lock()
			denied := s.denied[ch]
			if !denied {
				s.subs[ch] = append(s.subs[ch], c)
			}
			s.mu.Unlock()
			if denied {
				c.write("-NOPERM no permissions to access the '" + ch + "' channel\r\n")
				continue
			}
			c.write("*3\r\n" + bulk("subscribe") + bulk(ch) + ":" + strconv.Itoa(i+1) + "\r\n")
		}
	default:
		c.write("-ERR unknown command '" + args[0] + "'\r\n")
	}
}

func (s *respServer) drop(c *respConn) {
	c.conn.Close() //nolint:errcheck
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	for ch, list := range s.subs {
		kept := list[:0]
		for _, sub := range list {
			if sub != c {
				kept = append(kept, sub)
			}
		}
		s.subs[ch] = kept
	}
}

func bulk(s string) string {
	return "$" + strconv.Itoa(len(s)) + "\r\n" + s + "\r\n"
}

func readCommand(r *bufio.Reader) ([]string, error) {
	n, err := readLength(r, '*')
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.New("empty command")
	}

	args := make([]string, n)
	for i := range args {
		size, err := readLength(r, '$')
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func readLength(r *bufio.Reader, prefix byte) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[0] != prefix {
		return 0, fmt.Errorf("unexpected line %q", line)
	}
	return strconv.Atoi(line[1:])
}

func testRedisContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func closedChannel(ch <-chan []byte) bool {
	select {
	case _, ok := <-ch:
		return !ok
	default:
		return false
	}
}

func TestRedisPublisherDeliversUntilCancelled(t *testing.T) {
	srv := newRESPServer(t)
	ctx := testRedisContext(t)

	p, err := NewRedisPublisher(ctx, config.RelayConfig{Addr: srv.addr()})
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := p.Subscribe(subCtx, "crowdfeed:feed")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.subscribers("crowdfeed:feed"))

	require.NoError(t, p.Publish(ctx, "crowdfeed:feed", []byte(`{"topic":"/topic/scans"}`)))
	select {
	case got := <-msgs:
		assert.JSONEq(t, `{"topic":"/topic/scans"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	require.Eventually(t, func() bool { return closedChannel(msgs) }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return srv.subscribers("crowdfeed:feed") == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRedisPublisherSubscribeRejected(t *testing.T) {
	srv := newRESPServer(t)
	srv.deny("crowdfeed:feed")
	ctx := testRedisContext(t)

	p, err := NewRedisPublisher(ctx, config.RelayConfig{Addr: srv.addr()})
	require.NoError(t, err)
	defer p.Close() //nolint:errcheck

	_, err = p.Subscribe(ctx, "crowdfeed:feed")
	assert.ErrorContains(t, err, "NOPERM")
}

func TestRedisPublisherPingFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewRedisPublisher(testRedisContext(t), config.RelayConfig{Addr: addr})
	assert.ErrorContains(t, err, "connecting to redis at "+addr)
}

func TestRelaysOverRedis(t *testing.T) {
	srv := newRESPServer(t)
	ctx := testRedisContext(t)

	pa, err := NewRedisPublisher(ctx, config.RelayConfig{Addr: srv.addr()})
	require.NoError(t, err)
	pb, err := NewRedisPublisher(ctx, config.RelayConfig{Addr: srv.addr()})
	require.NoError(t, err)

	var a, b sinkRecorder
	ra := New(pa, "crowdfeed:", a.sink, nil)
	rb := New(pb, "crowdfeed:", b.sink, nil)
	require.NoError(t, ra.Start(ctx))
	require.NoError(t, rb.Start(ctx))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ra.Publish(ctx, "/topic/alerts", json.RawMessage(`{"id":3}`), at))

	require.Eventually(t, func() bool { return len(b.envelopes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := b.envelopes()[0]
	assert.Equal(t, ra.InstanceID(), got.InstanceID)
	assert.Equal(t, "/topic/alerts", got.Topic)
	assert.True(t, at.Equal(got.ReceivedAt))

	require.NoError(t, ra.Stop())
	require.NoError(t, rb.Stop())
	assert.Empty(t, a.envelopes())
}
