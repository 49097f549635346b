package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBus is an in-process Publisher shared by several relays.
type memBus struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	closed int
}

func newMemBus() *memBus { return &memBus{subs: map[string][]chan []byte{}} }

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *memBus) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	return nil
}

type sinkRecorder struct {
	mu  sync.Mutex
	got []Envelope
}

func (s *sinkRecorder) sink(e Envelope) {
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func (s *sinkRecorder) envelopes() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.got...)
}

func TestRelayForwardsRemoteEventsOnly(t *testing.T) {
	bus := newMemBus()
	var a, b sinkRecorder
	ra := New(bus, "crowdfeed:", a.sink, nil)
	rb := New(bus, "crowdfeed:", b.sink, nil)
	ctx := context.Background()

	require.NoError(t, ra.Start(ctx))
	require.NoError(t, rb.Start(ctx))
	assert.Equal(t, "crowdfeed:feed", ra.Channel())
	assert.NotEqual(t, ra.InstanceID(), rb.InstanceID())

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ra.Publish(ctx, "/topic/areas", json.RawMessage(`{"id":1}`), at))

	assert.Eventually(t, func() bool { return len(b.envelopes()) == 1 }, time.Second, time.Millisecond)
	got := b.envelopes()[0]
	assert.Equal(t, ra.InstanceID(), got.InstanceID)
	assert.Equal(t, "/topic/areas", got.Topic)
	assert.JSONEq(t, `{"id":1}`, string(got.Payload))
	assert.True(t, at.Equal(got.ReceivedAt))

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, a.envelopes())

	require.NoError(t, ra.Stop())
	require.NoError(t, rb.Stop())
	assert.Equal(t, 2, bus.closed)
}

func TestRelayDropsGarbage(t *testing.T) {
	bus := newMemBus()
	var rec sinkRecorder
	r := New(bus, "", rec.sink, nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop() //nolint:errcheck

	require.NoError(t, bus.Publish(context.Background(), "feed", []byte("not json")))
	require.NoError(t, bus.Publish(context.Background(), "feed", []byte(`{"instance_id":"other","topic":"/topic/scans","payload":{}}`)))

	assert.Eventually(t, func() bool { return len(rec.envelopes()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "other", rec.envelopes()[0].InstanceID)
}

type failingBus struct{ *memBus }

func (f *failingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("no redis")
}

func TestRelayStartFails(t *testing.T) {
	r := New(&failingBus{memBus: newMemBus()}, "x:", func(Envelope) {}, nil)
	assert.ErrorContains(t, r.Start(context.Background()), "no redis")
}

func TestPublishOnlyRelayDoesNotSubscribe(t *testing.T) {
	bus := newMemBus()
	r := New(bus, "x:", nil, nil)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))
	assert.Empty(t, bus.subs)
	require.NoError(t, r.Stop())
}
