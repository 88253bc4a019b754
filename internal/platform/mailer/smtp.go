package mailer

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPMailer struct {
	dialer   *gomail.Dialer
	From     string
	FromName string
}

func NewSMTPMailer(host string, port int, user, pass, fromName, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(strings.TrimSpace(host), port, strings.TrimSpace(user), strings.TrimSpace(pass)),
		From:     strings.TrimSpace(from),
		FromName: fromName,
	}
}

// Send delivers msg through the dialer. gomail has no context support, so the
// dial runs in its own goroutine and ctx only bounds how long the caller waits.
func (s *SMTPMailer) Send(ctx context.Context, msg Message) (string, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", fmt.Errorf("empty recipient email")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.From, s.FromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", to, msg.ToName)
	} else {
		m.SetHeader("To", to)
	}
	m.SetHeader("Subject", msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp send: %w", err)
		}
		return "", nil
	case <-ctx.Done():
		return "", fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
