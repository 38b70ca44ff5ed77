// Package mailer delivers transactional email through a pluggable Sender.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
)

var (
	ErrSendFailed    = errors.New("mail send failed")
	ErrInvalidConfig = errors.New("invalid mailer config")
	ErrInvalidParams = errors.New("invalid mail message")
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tag     string
}

func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidParams, err)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	}
	if m.HTML == "" && m.Text == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

// Sender delivers a single message; implementations honor ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	Backend              string
	SenderEmail          string
	SupportEmail         string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	PostmarkServerToken  string
	PostmarkAccountToken string
}

func validAddress(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}
