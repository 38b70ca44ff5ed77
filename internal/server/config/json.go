package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/linksphere/internal/flagx"
	"github.com/dmitrijs2005/linksphere/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Pointer fields
// distinguish "absent" from a zero value, so a partial file only overrides
// what it names. Durations accept "300s" strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	RedisURL                     *string         `json:"redis_url"`
	SecretKey                    *string         `json:"secret_key"`
	AdminSecret                  *string         `json:"admin_secret"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	OTPTTL                       *timex.Duration `json:"otp_ttl"`
	MaxSendAttempts              *int64          `json:"max_send_attempts"`
	RetryAttempts                *int            `json:"retry_attempts"`
	RetryBaseDelay               *timex.Duration `json:"retry_base_delay"`
	MailBackend                  *string         `json:"mail_backend"`
	SenderEmail                  *string         `json:"sender_email"`
	LogLevel                     *string         `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c/-config in args.
// Without that flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.AdminSecret, c.AdminSecret)
	setString(&config.MailBackend, c.MailBackend)
	setString(&config.SenderEmail, c.SenderEmail)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.OTPTTL != nil {
		config.OTPTTL = c.OTPTTL.Duration
	}
	if c.RetryBaseDelay != nil {
		config.RetryBaseDelay = c.RetryBaseDelay.Duration
	}
	if c.MaxSendAttempts != nil {
		config.MaxSendAttempts = *c.MaxSendAttempts
	}
	if c.RetryAttempts != nil {
		config.RetryAttempts = *c.RetryAttempts
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
