// Package sync wires the gateway, reconciliation engine, connection manager
// and side-effect dispatcher into one wallet synchronization session.
package sync

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds synchronization tuning and gateway endpoints.
type Config struct {
	GatewayBaseURL       string
	GatewayWSURL         string
	TokenSecret          string
	TokenTTL             time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
	PageSize             int
	NotifyWebhookURL     string
}

type yamlConfig struct {
	GatewayBaseURL       string `yaml:"gateway_base_url"`
	GatewayWSURL         string `yaml:"gateway_ws_url"`
	TokenSecret          string `yaml:"token_secret"`
	TokenTTL             string `yaml:"token_ttl"`
	ReconnectDelay       string `yaml:"reconnect_delay"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	PollInterval         string `yaml:"poll_interval"`
	PageSize             int    `yaml:"page_size"`
	NotifyWebhookURL     string `yaml:"notify_webhook_url"`
}

// LoadConfig builds the config from defaults, an optional yaml file named by
// WALLETSYNC_CONFIG, and environment variables filling remaining gaps.
func LoadConfig() (Config, error) {
	cfg := Config{
		TokenTTL:             5 * time.Minute,
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 5,
		PollInterval:         30 * time.Second,
		PageSize:             10,
	}

	if path := os.Getenv("WALLETSYNC_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		var file yamlConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, err
		}
		if err := applyFileConfig(&cfg, file); err != nil {
			return cfg, err
		}
	}

	if cfg.GatewayBaseURL == "" {
		cfg.GatewayBaseURL = os.Getenv("GATEWAY_BASE_URL")
	}
	if cfg.GatewayWSURL == "" {
		cfg.GatewayWSURL = os.Getenv("GATEWAY_WS_URL")
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = os.Getenv("GATEWAY_TOKEN_SECRET")
	}
	if cfg.NotifyWebhookURL == "" {
		cfg.NotifyWebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	}
	cfg.ReconnectDelay = getenvDuration("SYNC_RECONNECT_DELAY", cfg.ReconnectDelay)
	cfg.PollInterval = getenvDuration("SYNC_POLL_INTERVAL", cfg.PollInterval)
	cfg.TokenTTL = getenvDuration("GATEWAY_TOKEN_TTL", cfg.TokenTTL)
	cfg.MaxReconnectAttempts = getenvIntDefault("SYNC_MAX_RECONNECT_ATTEMPTS", cfg.MaxReconnectAttempts)
	cfg.PageSize = getenvIntDefault("SYNC_PAGE_SIZE", cfg.PageSize)

	if cfg.GatewayBaseURL == "" {
		return cfg, errors.New("sync: gateway base url required")
	}
	if cfg.TokenSecret == "" {
		return cfg, errors.New("sync: gateway token secret required")
	}
	if cfg.GatewayWSURL == "" {
		cfg.GatewayWSURL = deriveWSURL(cfg.GatewayBaseURL)
	}
	return cfg, nil
}

// deriveWSURL maps the HTTP base url onto the backend's websocket endpoint.
func deriveWSURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func applyFileConfig(cfg *Config, file yamlConfig) error {
	if file.GatewayBaseURL != "" {
		cfg.GatewayBaseURL = file.GatewayBaseURL
	}
	if file.GatewayWSURL != "" {
		cfg.GatewayWSURL = file.GatewayWSURL
	}
	if file.TokenSecret != "" {
		cfg.TokenSecret = file.TokenSecret
	}
	if file.NotifyWebhookURL != "" {
		cfg.NotifyWebhookURL = file.NotifyWebhookURL
	}
	if file.MaxReconnectAttempts > 0 {
		cfg.MaxReconnectAttempts = file.MaxReconnectAttempts
	}
	if file.PageSize > 0 {
		cfg.PageSize = file.PageSize
	}
	for _, field := range []struct {
		raw string
		dst *time.Duration
	}{
		{file.TokenTTL, &cfg.TokenTTL},
		{file.ReconnectDelay, &cfg.ReconnectDelay},
		{file.PollInterval, &cfg.PollInterval},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.raw)
		if err != nil {
			return err
		}
		*field.dst = parsed
	}
	return nil
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
