package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/auth"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/mailer"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/events"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/metrics"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrPasswordTooLong    = errors.New("password too long")
)

// bcrypt ignores input past this many bytes and newer versions reject it.
const maxPasswordBytes = 72

// UserRepository is the credential store.
type UserRepository interface {
	// FindByIdentifier matches username or email case-insensitively and
	// returns nil, nil when nothing matches.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*domain.User, error)
	UpgradeHash(ctx context.Context, userID int64, hash string) error
	SetResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userID int64) error
	// CompleteReset swaps the hash only while tokenHash is still current.
	CompleteReset(ctx context.Context, userID int64, tokenHash, newHash string) (bool, error)
	EnsureUser(ctx context.Context, u domain.User) (bool, error)
}

type AuthService struct {
	users    UserRepository
	sessions *auth.SessionManager
	mail     *mailer.Dispatcher
	bus      events.Publisher
	cfg      config.AuthConfig
	baseURL  string
	now      func() time.Time
}

func NewAuthService(
	users UserRepository,
	sessions *auth.SessionManager,
	mail *mailer.Dispatcher,
	bus events.Publisher,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		mail:     mail,
		bus:      bus,
		cfg:      cfg.Auth,
		baseURL:  cfg.App.BaseURL,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for reset token expiry.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login checks credentials and opens a session. Unknown identifiers and wrong
// passwords both return ErrInvalidCredentials after one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	req.Normalize()

	user, err := s.users.FindByIdentifier(ctx, req.Username)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		auth.BurnCompare(req.Password)
		metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	ok, needsUpgrade := auth.VerifyPassword(user.PasswordHash, req.Password)
	if !ok {
		metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}
	if !user.Role.Valid() {
		logger.WarnContext(ctx, "User has unknown role", "user_id", user.ID, "role", user.Role)
		metrics.Logins.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	if needsUpgrade {
		if hash, err := auth.HashPassword(req.Password); err != nil {
			logger.WarnContext(ctx, "Password rehash failed", "user_id", user.ID, "error", err)
		} else if err := s.users.UpgradeHash(ctx, user.ID, hash); err != nil {
			logger.WarnContext(ctx, "Password hash upgrade failed", "user_id", user.ID, "error", err)
		} else {
			logger.InfoContext(ctx, "Upgraded legacy password hash", "user_id", user.ID)
		}
	}

	sess, err := s.sessions.Create(ctx, user.ID, user.Role, user.Username)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	logger.InfoContext(ctx, "User logged in", "user_id", user.ID, "role", user.Role)
	return sess, nil
}

func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Recover starts a password reset for email. Callers answer the same way
// whether or not the address belongs to anyone; only store failures return
// an error.
func (s *AuthService) Recover(ctx context.Context, req domain.RecoverRequest) error {
	req.Normalize()

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("find user by email: %w", err)
	}
	if user == nil || user.Email == "" {
		logger.InfoContext(ctx, "Password recovery for unknown email")
		return nil
	}

	token, err := auth.NewToken()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.cfg.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, auth.HashToken(token), expires); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.baseURL + "/login/?reset=" + url.QueryEscape(token)
	to, name, ttl := user.Email, user.Username, s.cfg.ResetTokenTTL
	s.mail.Go(ctx, mailer.KindRecovery, func(ctx context.Context) error {
		return s.mail.SendRecovery(ctx, to, name, link, ttl)
	})
	logger.InfoContext(ctx, "Password recovery issued", "user_id", user.ID)
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error {
	req.Normalize()
	if utf8.RuneCountInString(req.Password) < s.cfg.MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(req.Password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	if req.Token == "" {
		return ErrInvalidResetToken
	}

	tokenHash := auth.HashToken(req.Token)
	user, err := s.users.FindByResetToken(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("find reset token: %w", err)
	}
	if user == nil {
		return ErrInvalidResetToken
	}
	if user.ResetExpiresAt == nil || s.now().After(*user.ResetExpiresAt) {
		if err := s.users.ClearResetToken(ctx, user.ID); err != nil {
			logger.WarnContext(ctx, "Clearing expired reset token failed", "user_id", user.ID, "error", err)
		}
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	ok, err := s.users.CompleteReset(ctx, user.ID, tokenHash, hash)
	if err != nil {
		return fmt.Errorf("complete reset: %w", err)
	}
	if !ok {
		return ErrInvalidResetToken
	}

	if err := s.sessions.RevokeUser(ctx, user.ID); err != nil {
		// the password already changed; surface the failure so it gets retried
		return err
	}
	events.Emit(ctx, s.bus, events.PasswordReset, events.PasswordResetEvent{UserID: user.ID, ResetAt: s.now().UTC()})
	logger.InfoContext(ctx, "Password reset completed", "user_id", user.ID)
	return nil
}

// EnsureAdmin seeds the default admin account when it does not exist. With no
// configured password a random one is generated and logged once.
func (s *AuthService) EnsureAdmin(ctx context.Context) error {
	password := s.cfg.AdminPassword
	generated := false
	if password == "" {
		tok, err := auth.NewToken()
		if err != nil {
			return err
		}
		password, generated = tok[:20], true
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	inserted, err := s.users.EnsureUser(ctx, domain.User{
		Username:     s.cfg.AdminUsername,
		Email:        s.cfg.AdminEmail,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if inserted {
		if generated {
			logger.WarnContext(ctx, "Created default admin with generated password; change it now",
				"username", s.cfg.AdminUsername, "password", password)
		} else {
			logger.InfoContext(ctx, "Created default admin", "username", s.cfg.AdminUsername)
		}
	}
	return nil
}
