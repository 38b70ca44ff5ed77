package mailer

import (
	"fmt"

	"github.com/dmitrijs2005/linksphere/internal/logging"
)

const (
	BackendLog      = "log"
	BackendSMTP     = "smtp"
	BackendPostmark = "postmark"
)

// NewSender picks the transport named by cfg.Backend.
func NewSender(cfg Config, log logging.Logger) (Sender, error) {
	switch cfg.Backend {
	case BackendLog, "":
		return NewLogSender(log), nil
	case BackendSMTP:
		s, err := NewSMTPSender(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPostmark:
		s, err := NewPostmarkSender(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
