package mailer

import (
	"context"

	"github.com/dmitrijs2005/linksphere/internal/logging"
)

// LogSender writes messages to the logger instead of delivering them. It is
// meant for local development only.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("module", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info(ctx, "mail captured", "to", msg.To, "subject", msg.Subject, "tag", msg.Tag)
	s.log.Debug(ctx, "mail body", "to", msg.To, "text", msg.Text)
	return nil
}
