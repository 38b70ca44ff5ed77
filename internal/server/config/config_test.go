package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":3000", c.EndpointAddrHTTP)
	assert.Equal(t, "redis://localhost:6379/0", c.RedisURL)
	assert.Equal(t, 24*time.Hour, c.AccessTokenValidityDuration)
	assert.Equal(t, 48*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 300*time.Second, c.OTPTTL)
	assert.Equal(t, int64(5), c.MaxSendAttempts)
	assert.Equal(t, 3, c.RetryAttempts)
	assert.Equal(t, MailBackendLog, c.MailBackend)
	require.NoError(t, c.Validate())
}

func TestParseEnv_OverridesDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8081")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REFRESH_TOKEN_TTL", "720h")
	t.Setenv("OTP_MAX_SEND_ATTEMPTS", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	var c Config
	c.LoadDefaults()
	require.NoError(t, parseEnv(&c))

	assert.Equal(t, ":8081", c.EndpointAddrHTTP)
	assert.Equal(t, "from-env", c.SecretKey)
	assert.Equal(t, 720*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, int64(7), c.MaxSendAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSAllowedOrigins)
	// untouched values keep their defaults
	assert.Equal(t, "adminSecret", c.AdminSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty secret", func(c *Config) { c.SecretKey = "" }},
		{"empty admin secret", func(c *Config) { c.AdminSecret = "" }},
		{"zero attempts", func(c *Config) { c.MaxSendAttempts = 0 }},
		{"zero retries", func(c *Config) { c.RetryAttempts = 0 }},
		{"negative ttl", func(c *Config) { c.OTPTTL = -time.Second }},
		{"no workers", func(c *Config) { c.BackgroundWorkers = 0 }},
		{"unknown mail backend", func(c *Config) { c.MailBackend = "pigeon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
