package config

import "time"

// Config is the full crowdfeed configuration. It is loaded from a YAML file
// and overlaid with environment variables.
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Feed          FeedConfig          `yaml:"feed"`
	Areas         []int64             `yaml:"areas"`
	Poll          PollConfig          `yaml:"poll"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Relay         RelayConfig         `yaml:"relay"`
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
}

// BackendConfig points at the REST API and holds the operator identity.
type BackendConfig struct {
	APIURL    string `yaml:"api_url"`
	UserEmail string `yaml:"user_email"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password,omitempty"`
}

// HasCredentials reports whether a login should be attempted at startup.
func (b BackendConfig) HasCredentials() bool {
	return b.Username != "" && b.Password != ""
}

// FeedConfig configures the realtime feed connection.
type FeedConfig struct {
	URL                  string        `yaml:"url"`
	SockJS               *bool         `yaml:"sockjs,omitempty"`
	HeartbeatOutgoing    time.Duration `yaml:"heartbeat_outgoing"`
	HeartbeatIncoming    time.Duration `yaml:"heartbeat_incoming"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	MaxReconnectAttempts *int          `yaml:"max_reconnect_attempts,omitempty"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	Backoff              string        `yaml:"backoff"`
	RecoverAfter         time.Duration `yaml:"recover_after"`
}

// UseSockJS reports whether the SockJS transport is selected. Defaults to true.
func (f FeedConfig) UseSockJS() bool {
	if f.SockJS == nil {
		return true
	}
	return *f.SockJS
}

// Backoff strategies accepted in feed.backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// PollConfig configures the REST polling fallback.
type PollConfig struct {
	Enabled     *bool         `yaml:"enabled,omitempty"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether polling fallback is on. Defaults to true.
func (p PollConfig) IsEnabled() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// NotificationsConfig holds all notification provider configurations.
type NotificationsConfig struct {
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Discord  *DiscordConfig  `yaml:"discord,omitempty"`
	Webhook  *WebhookConfig  `yaml:"webhook,omitempty"`
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Token               string   `yaml:"token,omitempty"`
	ChatID              string   `yaml:"chat_id,omitempty"`
	Events              []string `yaml:"events"`
	DisableNotification bool     `yaml:"disable_notification"`
}

// DiscordConfig holds Discord notification settings.
type DiscordConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events"`
}

// WebhookConfig holds generic webhook notification settings.
type WebhookConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Method   string   `yaml:"method"`
	Events   []string `yaml:"events"`
}

// RelayConfig configures the optional Redis fan-out of feed events.
type RelayConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Port    string `yaml:"port"`
}

// IsEnabled reports whether the status server runs. Defaults to true.
func (s ServerConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// LogConfig holds logging options that are not set by flags.
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}
