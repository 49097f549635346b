// Package config handles loading, parsing, and validating the crowdfeed YAML
// configuration, with environment variable overrides for endpoints and
// secrets and optional .env loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// DefaultConfigPath is where the binary looks for its configuration.
const DefaultConfigPath = "configs/crowdfeed.yaml"

// Load reads the YAML file at path, then applies defaults and environment
// overrides. The result is not validated; call Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns a configuration built from defaults and the environment
// only, for running without a file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.APIURL == "" {
		cfg.Backend.APIURL = constants.DefaultAPIURL
	}

	f := &cfg.Feed
	if f.URL == "" {
		f.URL = constants.DefaultFeedURL
	}
	if f.HeartbeatOutgoing == 0 {
		f.HeartbeatOutgoing = constants.DefaultHeartbeatOutgoing
	}
	if f.HeartbeatIncoming == 0 {
		f.HeartbeatIncoming = constants.DefaultHeartbeatIncoming
	}
	if f.ConnectTimeout == 0 {
		f.ConnectTimeout = constants.DefaultConnectTimeout
	}
	if f.MaxReconnectAttempts == nil {
		n := constants.DefaultMaxReconnectAttempts
		f.MaxReconnectAttempts = &n
	}
	if f.ReconnectDelay == 0 {
		f.ReconnectDelay = constants.DefaultReconnectDelay
	}
	if f.Backoff == "" {
		f.Backoff = BackoffFixed
	}
	if f.RecoverAfter == 0 {
		f.RecoverAfter = constants.DefaultRecoverAfter
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = constants.DefaultPollInterval
	}
	if cfg.Poll.Concurrency == 0 {
		cfg.Poll.Concurrency = constants.DefaultPollConcurrency
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = constants.DefaultPollTimeout
	}

	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Method == "" {
		cfg.Notifications.Webhook.Method = "POST"
	}

	if cfg.Relay.Addr == "" {
		cfg.Relay.Addr = "localhost:6379"
	}
	if cfg.Relay.Prefix == "" {
		cfg.Relay.Prefix = "crowdfeed:"
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = constants.DefaultServerPort
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
}

// applyEnvOverrides overlays environment variables for endpoints and secrets.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("CROWDFEED_API_URL", &cfg.Backend.APIURL)
	setString("CROWDFEED_WS_URL", &cfg.Feed.URL)
	setString("CROWDFEED_USER_EMAIL", &cfg.Backend.UserEmail)
	setString("CROWDFEED_USERNAME", &cfg.Backend.Username)
	setString("CROWDFEED_PASSWORD", &cfg.Backend.Password)

	if n := cfg.Notifications.Telegram; n != nil {
		setString("TELEGRAM_TOKEN", &n.Token)
		setString("TELEGRAM_CHAT_ID", &n.ChatID)
	}
	if n := cfg.Notifications.Discord; n != nil {
		setString("DISCORD_WEBHOOK", &n.WebhookURL)
	}
	if n := cfg.Notifications.Webhook; n != nil {
		setString("WEBHOOK_URL", &n.Endpoint)
	}

	setString("REDIS_ADDR", &cfg.Relay.Addr)
	setString("REDIS_PASSWORD", &cfg.Relay.Password)
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Relay.DB = db
		}
	}
}

// Validate checks the configuration for common errors.
func Validate(cfg *Config) error {
	if err := validateURL("backend.api_url", cfg.Backend.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("feed.url", cfg.Feed.URL, "http", "https", "ws", "wss"); err != nil {
		return err
	}

	f := cfg.Feed
	if f.HeartbeatOutgoing < 0 || f.HeartbeatIncoming < 0 {
		return fmt.Errorf("feed heartbeats must not be negative")
	}
	if f.ConnectTimeout <= 0 {
		return fmt.Errorf("feed.connect_timeout must be positive")
	}
	if f.ReconnectDelay < 0 {
		return fmt.Errorf("feed.reconnect_delay must not be negative")
	}
	if f.Backoff != BackoffFixed && f.Backoff != BackoffExponential {
		return fmt.Errorf("feed.backoff must be %q or %q, got %q", BackoffFixed, BackoffExponential, f.Backoff)
	}

	for i, id := range cfg.Areas {
		if id <= 0 {
			return fmt.Errorf("areas[%d]: invalid area id %d", i, id)
		}
	}

	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if cfg.Poll.Concurrency < 1 {
		return fmt.Errorf("poll.concurrency must be at least 1")
	}

	if err := validateNotifications(cfg.Notifications); err != nil {
		return err
	}

	if cfg.Relay.Enabled && cfg.Relay.Addr == "" {
		return fmt.Errorf("relay enabled but addr not set (use env var REDIS_ADDR)")
	}

	if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		return fmt.Errorf("server.port %q is not a number", cfg.Server.Port)
	}

	return nil
}

func validateNotifications(n NotificationsConfig) error {
	if n.Telegram != nil && n.Telegram.Enabled {
		if n.Telegram.Token == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram enabled but token or chat_id not set (use env vars TELEGRAM_TOKEN and TELEGRAM_CHAT_ID)")
		}
		if err := validateEvents("telegram", n.Telegram.Events); err != nil {
			return err
		}
	}

	if n.Discord != nil && n.Discord.Enabled {
		if n.Discord.WebhookURL == "" {
			return fmt.Errorf("discord enabled but webhook_url not set (use env var DISCORD_WEBHOOK)")
		}
		if err := validateEvents("discord", n.Discord.Events); err != nil {
			return err
		}
	}

	if n.Webhook != nil && n.Webhook.Enabled {
		if n.Webhook.Endpoint == "" {
			return fmt.Errorf("webhook enabled but endpoint not set (use env var WEBHOOK_URL)")
		}
		method := strings.ToUpper(n.Webhook.Method)
		if method != "GET" && method != "POST" && method != "PUT" {
			return fmt.Errorf("webhook method must be GET, POST or PUT, got %q", n.Webhook.Method)
		}
		if err := validateEvents("webhook", n.Webhook.Events); err != nil {
			return err
		}
	}

	return nil
}

func validateEvents(provider string, events []string) error {
	for _, e := range events {
		if model.ParseEvent(e) == "" {
			return fmt.Errorf("%s: unknown event %q", provider, e)
		}
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s: %q has no host", field, raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%s: scheme must be one of %v, got %q", field, schemes, u.Scheme)
}
