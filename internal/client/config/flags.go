package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/linksphere/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     base URL of the server API (default from Config)
//	-t duration   per-request timeout, e.g. "5s" (default from Config)
//
// Arguments not listed above are filtered out with flagx.FilterArgs first.
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, []string{"-a", "-t"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server API base URL")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}
	return nil
}
