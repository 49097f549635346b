package realtime

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/constants"
)

// Config tunes a Client. The zero value connects without heart-beats and
// never retries; start from DefaultConfig.
type Config struct {
	// Host is sent as the CONNECT host header when set.
	Host     string
	Login    string
	Passcode string
	// Headers are extra CONNECT headers. They never override the ones above.
	Headers map[string]string

	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration

	// ConnectTimeout bounds dial plus handshake of one attempt.
	ConnectTimeout time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// MaxReconnectAttempts is the number of retries after the first failed
	// attempt of a connect cycle. Negative retries forever.
	MaxReconnectAttempts int
	// Backoff spaces retries. Nil means a fixed DefaultReconnectDelay.
	Backoff Backoff
}

// DefaultConfig returns the configuration the dashboard uses.
func DefaultConfig() Config {
	return Config{
		HeartbeatOutgoing:    constants.DefaultHeartbeatOutgoing,
		HeartbeatIncoming:    constants.DefaultHeartbeatIncoming,
		ConnectTimeout:       constants.DefaultConnectTimeout,
		WriteTimeout:         constants.DefaultWriteTimeout,
		MaxReconnectAttempts: constants.DefaultMaxReconnectAttempts,
		Backoff:              FixedBackoff(constants.DefaultReconnectDelay),
	}
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = constants.DefaultConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.Backoff == nil {
		c.Backoff = FixedBackoff(constants.DefaultReconnectDelay)
	}
	return c
}

// Backoff yields the delay before each retry of a connect cycle. Reset is
// called after every successful connect.
type Backoff interface {
	Next() time.Duration
	Reset()
}

// FixedBackoff waits the same delay before every retry.
type FixedBackoff time.Duration

func (b FixedBackoff) Next() time.Duration { return time.Duration(b) }

func (FixedBackoff) Reset() {}

// ExponentialBackoff doubles the delay after each retry up to Max, with
// +/- Jitter applied to every value it returns.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is a fraction of the delay, 0.25 means +/- 25%.
	Jitter float64

	mu      sync.Mutex
	current time.Duration
}

// NewExponentialBackoff returns a backoff starting at 1s, doubling up to 60s
// with 25% jitter.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    time.Second,
		Max:        60 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

func (b *ExponentialBackoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current

	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max || next <= 0 {
		next = b.Max
	}
	b.current = next

	if b.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * b.Jitter * float64(d))
	}
	return d
}

func (b *ExponentialBackoff) Reset() {
	b.mu.Lock()
	b.current = 0
	b.mu.Unlock()
}
