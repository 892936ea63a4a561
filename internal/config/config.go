// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (ORDERCHAT_* runtime overrides)
//  2. Config file (~/.orderchat/config.yaml)
//  3. Default values
//
// The backend endpoints and the auth key have no defaults: their absence
// is a startup-time configuration error, the only fatal error class in
// the program. Everything that happens after startup degrades instead of
// crashing.
//
// Security: the auth key is never logged; MarshalJSON masks it. The
// config directory is created with 0750 permissions.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation. Check with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIBaseURL indicates the REST base URL is not set.
	ErrMissingAPIBaseURL = errors.New("missing api_base_url")

	// ErrMissingStreamURL indicates the streaming channel URL is not set.
	ErrMissingStreamURL = errors.New("missing stream_url")

	// ErrMissingAuthKey indicates the auth provider key is not set.
	ErrMissingAuthKey = errors.New("missing auth_key")

	// ErrInvalidURL indicates an endpoint URL does not parse or has a
	// non-HTTP scheme.
	ErrInvalidURL = errors.New("invalid endpoint URL")

	// ErrInvalidConnectTimeout indicates connect_timeout_ms is not positive.
	ErrInvalidConnectTimeout = errors.New("invalid connect timeout")

	// ErrInvalidReconnectAttempts indicates reconnect_attempts is negative.
	ErrInvalidReconnectAttempts = errors.New("invalid reconnect attempts")
)

// Defaults for the streaming channel, matching the behavior the backend
// was tuned for.
const (
	// DefaultConnectTimeoutMs bounds how long Connect waits before
	// giving up on the channel.
	DefaultConnectTimeoutMs = 20000

	// DefaultReconnectAttempts is how many times the session tries to
	// re-establish a dropped channel before settling in the errored state.
	DefaultReconnectAttempts = 5
)

// Config stores application configuration.
// SECURITY: AuthKey is masked in MarshalJSON. When adding new sensitive
// fields, update MarshalJSON.
type Config struct {
	// Backend endpoints (required, no defaults)
	APIBaseURL string `mapstructure:"api_base_url" json:"api_base_url"`
	StreamURL  string `mapstructure:"stream_url" json:"stream_url"`

	// Auth provider key used as the bearer token on every REST call.
	AuthKey string `mapstructure:"auth_key" json:"auth_key"` // SENSITIVE: masked in MarshalJSON

	// Identity of the local user, echoed into outbound queries and the
	// feedback endpoint path.
	UserID string `mapstructure:"user_id" json:"user_id"`

	// Streaming channel tuning
	ConnectTimeoutMs  int  `mapstructure:"connect_timeout_ms" json:"connect_timeout_ms"`
	AutoReconnect     bool `mapstructure:"auto_reconnect" json:"auto_reconnect"`
	ReconnectAttempts int  `mapstructure:"reconnect_attempts" json:"reconnect_attempts"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// SlogLevel maps the configured level string to a slog level.
// Unrecognized values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Dir returns the configuration directory (~/.orderchat), creating it
// if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}

	dir := filepath.Join(home, ".orderchat")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars may carry everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults and environment",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail fast: a half-configured client is useless at runtime.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("connect_timeout_ms", DefaultConnectTimeoutMs)
	viper.SetDefault("auto_reconnect", true)
	viper.SetDefault("reconnect_attempts", DefaultReconnectAttempts)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("api_base_url", "ORDERCHAT_API_BASE_URL")
	mustBind("stream_url", "ORDERCHAT_STREAM_URL")
	mustBind("auth_key", "ORDERCHAT_AUTH_KEY")
	mustBind("user_id", "ORDERCHAT_USER_ID")
	mustBind("log_level", "ORDERCHAT_LOG_LEVEL")
	mustBind("log_json", "ORDERCHAT_LOG_JSON")
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("%w: set api_base_url or ORDERCHAT_API_BASE_URL", ErrMissingAPIBaseURL)
	}
	if err := validateHTTPURL(c.APIBaseURL); err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}

	if c.StreamURL == "" {
		return fmt.Errorf("%w: set stream_url or ORDERCHAT_STREAM_URL", ErrMissingStreamURL)
	}
	if err := validateHTTPURL(c.StreamURL); err != nil {
		return fmt.Errorf("stream_url: %w", err)
	}

	if c.AuthKey == "" {
		return fmt.Errorf("%w: set auth_key or ORDERCHAT_AUTH_KEY", ErrMissingAuthKey)
	}

	if c.ConnectTimeoutMs <= 0 {
		return fmt.Errorf("%w: %d (must be > 0)", ErrInvalidConnectTimeout, c.ConnectTimeoutMs)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("%w: %d (must be >= 0)", ErrInvalidReconnectAttempts, c.ReconnectAttempts)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q (want http or https)", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit masking of
// sensitive fields so a dumped config never leaks the auth key.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	masked.AuthKey = maskSecret(c.AuthKey)
	return json.Marshal(masked)
}
