package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveEmailProvider(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		cfg      EmailConfig
		want     EmailProvider
	}{
		{"nothing configured", "", EmailConfig{}, ProviderDisabled},
		{"mailersend auto", "", EmailConfig{MailerSendKey: "k", FromEmail: "a@b.c"}, ProviderMailerSend},
		{"smtp auto", "", EmailConfig{SMTPUser: "u", SMTPPass: "p", FromEmail: "a@b.c"}, ProviderSMTP},
		{"mailersend wins auto", "", EmailConfig{MailerSendKey: "k", SMTPUser: "u", SMTPPass: "p", FromEmail: "a@b.c"}, ProviderMailerSend},
		{"explicit smtp", "SMTP", EmailConfig{SMTPHost: "localhost", FromEmail: "a@b.c"}, ProviderSMTP},
		{"explicit smtp missing from", "smtp", EmailConfig{SMTPHost: "localhost"}, ProviderDisabled},
		{"explicit mailersend missing key", "mailersend", EmailConfig{FromEmail: "a@b.c"}, ProviderDisabled},
		{"explicit log", "log", EmailConfig{}, ProviderLog},
		{"explicit disabled", "disabled", EmailConfig{MailerSendKey: "k", FromEmail: "a@b.c"}, ProviderDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEmailProvider(tt.explicit, tt.cfg))
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EMAIL_PROVIDER", "log")
	t.Setenv("APP_BASE_URL", "https://app.example/")

	cfg := Load()
	assert.True(t, cfg.Database.InMemory())
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ProviderLog, cfg.Email.Provider)
	assert.Equal(t, "https://app.example", cfg.App.BaseURL)
	assert.Equal(t, 8, cfg.Auth.MinPasswordLength)
}
