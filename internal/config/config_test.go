package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		APIBaseURL:        "https://api.example.com",
		StreamURL:         "https://stream.example.com",
		AuthKey:           "sk_test_1234567890",
		UserID:            "user_1",
		ConnectTimeoutMs:  DefaultConnectTimeoutMs,
		AutoReconnect:     true,
		ReconnectAttempts: DefaultReconnectAttempts,
		LogLevel:          "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config passes",
			mutate: func(*Config) {},
		},
		{
			name:    "missing api base url",
			mutate:  func(c *Config) { c.APIBaseURL = "" },
			wantErr: ErrMissingAPIBaseURL,
		},
		{
			name:    "missing stream url",
			mutate:  func(c *Config) { c.StreamURL = "" },
			wantErr: ErrMissingStreamURL,
		},
		{
			name:    "missing auth key",
			mutate:  func(c *Config) { c.AuthKey = "" },
			wantErr: ErrMissingAuthKey,
		},
		{
			name:    "non-http scheme rejected",
			mutate:  func(c *Config) { c.APIBaseURL = "ftp://api.example.com" },
			wantErr: ErrInvalidURL,
		},
		{
			name:    "url without host rejected",
			mutate:  func(c *Config) { c.StreamURL = "https://" },
			wantErr: ErrInvalidURL,
		},
		{
			name:    "zero connect timeout rejected",
			mutate:  func(c *Config) { c.ConnectTimeoutMs = 0 },
			wantErr: ErrInvalidConnectTimeout,
		},
		{
			name:    "negative reconnect attempts rejected",
			mutate:  func(c *Config) { c.ReconnectAttempts = -1 },
			wantErr: ErrInvalidReconnectAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrConfigNil)
}

func TestZeroReconnectAttemptsAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.ReconnectAttempts = 0
	assert.NoError(t, cfg.Validate())
}

func TestMarshalJSONMasksAuthKey(t *testing.T) {
	cfg := validConfig()
	cfg.AuthKey = "sk_live_abcdefghijklmnop"

	out, err := json.Marshal(cfg)
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, "sk_live_abcdefghijklmnop")
	assert.Contains(t, s, maskedValue)
	// Non-sensitive fields survive untouched.
	assert.Contains(t, s, "https://api.example.com")
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		check  func(t *testing.T, got string)
	}{
		{
			name:   "empty stays empty",
			secret: "",
			check:  func(t *testing.T, got string) { assert.Empty(t, got) },
		},
		{
			name:   "short secret fully masked",
			secret: "abc123",
			check:  func(t *testing.T, got string) { assert.Equal(t, maskedValue, got) },
		},
		{
			name:   "long secret keeps edges only",
			secret: "sk_long_secret_key_42",
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, "sk"))
				assert.True(t, strings.HasSuffix(got, "42"))
				assert.NotContains(t, got, "long_secret")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, maskSecret(tt.secret))
		})
	}
}
