// Package relay fans decoded feed events out to other crowdfeed instances
// over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crowdpulse/crowdfeed/internal/logger"
)

// Envelope wraps a feed message with the instance that published it so a
// node can skip its own messages.
type Envelope struct {
	InstanceID string          `json:"instance_id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Publisher is the pub/sub transport under the relay.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw messages that is closed when the
	// subscription ends.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Sink receives events published by other instances.
type Sink func(Envelope)

// Relay publishes local feed events and forwards remote ones to a sink.
type Relay struct {
	pub        Publisher
	channel    string
	instanceID string
	sink       Sink
	log        *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a relay on pub. Messages go to prefix+"feed".
func New(pub Publisher, prefix string, sink Sink, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{
		pub:        pub,
		channel:    prefix + "feed",
		instanceID: uuid.New().String(),
		sink:       sink,
		log:        log.With("relay"),
	}
}

// InstanceID identifies this node in envelopes.
func (r *Relay) InstanceID() string { return r.instanceID }

// Channel is the pub/sub channel in use.
func (r *Relay) Channel() string { return r.channel }

// Start subscribes to the channel and begins forwarding. It returns once the
// subscription is confirmed. Without a sink nothing is subscribed.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	if r.sink != nil {
		msgs, err := r.pub.Subscribe(ctx, r.channel)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribing to %s: %w", r.channel, err)
		}
		r.wg.Add(1)
		go r.listen(ctx, msgs)
	}

	r.cancel = cancel
	r.started = true
	r.log.Info("Relay started", "channel", r.channel, "instance_id", r.instanceID)
	return nil
}

// Publish sends one feed message to the other instances.
func (r *Relay) Publish(ctx context.Context, topic string, payload json.RawMessage, receivedAt time.Time) error {
	data, err := json.Marshal(Envelope{
		InstanceID: r.instanceID,
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding relay envelope: %w", err)
	}
	if err := r.pub.Publish(ctx, r.channel, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", r.channel, err)
	}
	return nil
}

// Stop ends forwarding and closes the publisher.
func (r *Relay) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.started = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return r.pub.Close()
}

func (r *Relay) listen(ctx context.Context, msgs <-chan []byte) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			r.handle(raw)
		}
	}
}

func (r *Relay) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.log.Warn("Dropping undecodable relay message", "error", err)
		return
	}
	if env.InstanceID == r.instanceID {
		return
	}

	r.log.Debug("Relaying remote event", "from_instance", env.InstanceID, "topic", env.Topic)
	r.sink(env)
}
