package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/linksphere/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string      HTTP bind address (e.g., ":3000")
//	-d string      PostgreSQL DSN
//	-redis string  Redis URL
//	-s string      JWT HMAC secret key
//	-admin string  admin secret for OTP resets
//	-t duration    access token validity (e.g., "24h")
//	-r duration    refresh token validity (e.g., "48h")
//	-mail string   mail backend: log, smtp or postmark
//
// Arguments not listed above are filtered out with flagx.FilterArgs first.
func parseFlags(config *Config, args []string) error {
	filtered := flagx.FilterArgs(args, []string{"-a", "-d", "-redis", "-s", "-admin", "-t", "-r", "-mail"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "redis", config.RedisURL, "redis URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.AdminSecret, "admin", config.AdminSecret, "admin secret")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.StringVar(&config.MailBackend, "mail", config.MailBackend, "mail backend")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}
	return nil
}
