// Package mail delivers transactional emails: quote documents and password
// reset links.
package mail

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrInvalidMessage is returned for messages without recipient or subject.
var ErrInvalidMessage = errors.New("mail: invalid message")

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Message is a provider-independent email.
type Message struct {
	To          []string     `json:"to"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate checks the minimum a provider needs.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return errors.Join(ErrInvalidMessage, errors.New("recipient required"))
	}
	for _, to := range m.To {
		if !strings.Contains(to, "@") {
			return errors.Join(ErrInvalidMessage, errors.New("malformed recipient"))
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("subject required"))
	}
	return nil
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the logger instead of sending them. It is the
// development provider.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the envelope of the message.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	s.logger.InfoContext(ctx, "mail delivered to log",
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Any("attachments", names),
		slog.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
