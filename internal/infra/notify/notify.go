package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"

	"zedflip/internal/app/policies"
)

var (
	ErrInvalidAddress = errors.New("notify: invalid email address")
	ErrInvalidPhone   = errors.New("notify: invalid Zambian phone number")
)

var zambianPhone = regexp.MustCompile(`^\+260[0-9]{9}$`)

// EmailNotifier writes outgoing email to the log. No provider is wired.
type EmailNotifier struct {
	From   string
	Logger *slog.Logger
}

func NewEmailNotifier(from string, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{From: from, Logger: logger}
}

func (n *EmailNotifier) Send(ctx context.Context, to, template string, data any) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, to)
	}
	logger(n.Logger).InfoContext(ctx, "email sent", "from", n.From, "to", to, "template", template, "data", data)
	return nil
}

// SMSNotifier writes outgoing SMS to the log after checking the number is Zambian.
type SMSNotifier struct {
	SenderID string
	Logger   *slog.Logger
}

func NewSMSNotifier(senderID string, logger *slog.Logger) *SMSNotifier {
	return &SMSNotifier{SenderID: senderID, Logger: logger}
}

func (n *SMSNotifier) Send(ctx context.Context, to, template string, data any) error {
	if !zambianPhone.MatchString(to) {
		return fmt.Errorf("%w: %s", ErrInvalidPhone, to)
	}
	logger(n.Logger).InfoContext(ctx, "sms sent", "sender", n.SenderID, "to", to, "template", template, "text", textOf(data))
	return nil
}

// textOf picks the Text field SMS payloads carry, if any.
func textOf(data any) any {
	if t, ok := data.(interface{ SMSText() string }); ok {
		return t.SMSText()
	}
	return data
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

var (
	_ policies.Notifier = (*EmailNotifier)(nil)
	_ policies.Notifier = (*SMSNotifier)(nil)
)
