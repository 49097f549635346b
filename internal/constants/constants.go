// Package constants defines backend endpoints, feed topics, protocol
// defaults, and the timeout/interval values used throughout crowdfeed.
package constants

import "time"

const (
	// DefaultAPIURL is the backend REST base URL.
	DefaultAPIURL = "http://localhost:8080/api"
	// DefaultFeedURL is the backend STOMP endpoint (SockJS enabled).
	DefaultFeedURL = "http://localhost:8080/ws"
	// UserEmailHeader scopes events and alerts to their owner.
	UserEmailHeader = "X-User-Email"
	// UserAgent is sent on REST and WebSocket requests.
	UserAgent = "crowdfeed/1.0"
)

const (
	// StompVersions is offered in the CONNECT frame.
	StompVersions = "1.2,1.1"
	// DefaultHeartbeatOutgoing is how often we offer to send heart-beats.
	DefaultHeartbeatOutgoing = 4 * time.Second
	// DefaultHeartbeatIncoming is how often we ask the server to send them.
	DefaultHeartbeatIncoming = 4 * time.Second
	// HeartbeatTolerance multiplies the negotiated incoming interval before
	// a silent connection is declared dead.
	HeartbeatTolerance = 2
	// DefaultReconnectDelay is the fixed delay between reconnect attempts.
	DefaultReconnectDelay = 3 * time.Second
	// DefaultMaxReconnectAttempts bounds automatic retries per connect cycle.
	DefaultMaxReconnectAttempts = 5
	// DefaultConnectTimeout bounds dial plus STOMP handshake.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second
	// DisconnectTimeout bounds the best-effort DISCONNECT on teardown.
	DisconnectTimeout = 2 * time.Second
	// OutboundQueueSize is the per-session outbound frame buffer.
	OutboundQueueSize = 256
)

const (
	// DefaultHTTPTimeout is the default timeout for REST requests.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultMaxRetries is the default number of retries for idempotent requests.
	DefaultMaxRetries = 3
	// MaxResponseBytes caps a REST response body.
	MaxResponseBytes = 1 << 20
	// CircuitBreakerThreshold is the consecutive failure count that opens the breaker.
	CircuitBreakerThreshold = 10
	// CircuitBreakerMaxCooldown caps how long the breaker stays open.
	CircuitBreakerMaxCooldown = 5 * time.Minute
)

const (
	// DefaultPollInterval matches the dashboard's refresh rate.
	DefaultPollInterval = 5 * time.Second
	// DefaultPollConcurrency bounds parallel REST calls per poll.
	DefaultPollConcurrency = 2
	// DefaultPollTimeout bounds a single poll.
	DefaultPollTimeout = 8 * time.Second
	// DefaultRecoverAfter is how long the monitor waits after the feed gives
	// up before connecting again.
	DefaultRecoverAfter = 60 * time.Second
	// DefaultRecentScansLimit is the default limit for GET /scans/recent.
	DefaultRecentScansLimit = 50
	// DefaultAlertDateRange is the default window for GET /alerts.
	DefaultAlertDateRange = "24h"
	// MaxStoredAlerts caps the in-memory alert list.
	MaxStoredAlerts = 200
	// MaxStoredScans caps the in-memory recent scan ring.
	MaxStoredScans = 50
	// PredictionWindow is the number of hourly points averaged for a prediction.
	PredictionWindow = 3
	// DefaultGracefulShutdownTimeout is the timeout for graceful HTTP server shutdown.
	DefaultGracefulShutdownTimeout = 10 * time.Second
	// DefaultServerPort is the status server port.
	DefaultServerPort = "8090"
)
