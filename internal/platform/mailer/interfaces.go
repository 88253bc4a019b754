package mailer

import (
	"context"
	"errors"

	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
)

// ErrNotConfigured is returned by every send when no provider is configured.
var ErrNotConfigured = errors.New("email provider not configured")

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one message and returns the provider message id, if any.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New builds the sender for the provider resolved in config.Load.
func New(cfg config.EmailConfig) Sender {
	switch cfg.Provider {
	case config.ProviderSMTP:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.FromName, cfg.FromEmail)
	case config.ProviderMailerSend:
		return NewMailer(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail)
	case config.ProviderLog:
		return NewDevMailer()
	}
	return Disabled{}
}

type Disabled struct{}

func (Disabled) Send(context.Context, Message) (string, error) {
	return "", ErrNotConfigured
}
