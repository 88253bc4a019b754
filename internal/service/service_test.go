package service_test

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/auth"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/blob"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/mailer"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/receipts"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/repo/memory"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/service"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/events"
)

// ---------- Mocks ----------

type outbox struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return "id", nil
}

func (o *outbox) all() []mailer.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mailer.Message(nil), o.msgs...)
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordingBus) Publish(_ context.Context, subject string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *recordingBus) Close() error { return nil }

// ---------- Fixture ----------

type fixture struct {
	cfg      *config.Config
	users    *memory.Users
	sessions *memory.Sessions
	manager  *auth.SessionManager
	box      *outbox
	mail     *mailer.Dispatcher
	bus      *recordingBus
	auth     *service.AuthService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg: &config.Config{
			Auth: config.AuthConfig{
				JWTSecret:         "test-secret",
				SessionTTL:        time.Hour,
				ResetTokenTTL:     time.Hour,
				ReceiptLinkTTL:    24 * time.Hour,
				AdminUsername:     "admin",
				AdminEmail:        "admin@example.com",
				MinPasswordLength: 8,
			},
			Email: config.EmailConfig{Timeout: time.Second},
			App:   config.AppConfig{Name: "Pilla Tu Visa", BaseURL: "http://localhost:3000"},
		},
		users:    memory.NewUsers(),
		sessions: memory.NewSessions(),
		box:      &outbox{},
		bus:      &recordingBus{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.manager = auth.NewSessionManager(f.sessions, auth.NewSessionCache(), f.cfg.Auth.SessionTTL).WithClock(clock)
	f.mail = mailer.NewDispatcher(f.box, f.cfg.Email, f.cfg.App.Name)
	f.auth = service.NewAuthService(f.users, f.manager, f.mail, f.bus, f.cfg).WithClock(clock)
	return f
}

func (f *fixture) seed(t *testing.T, username, email, hash string, role domain.Role) {
	t.Helper()
	ok, err := f.users.EnsureUser(context.Background(), domain.User{Username: username, Email: email, PasswordHash: hash, Role: role})
	require.NoError(t, err)
	require.True(t, ok)
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.mail.Wait(ctx))
}

func resetTokenFrom(t *testing.T, msg mailer.Message) string {
	t.Helper()
	idx := strings.Index(msg.Text, "http://localhost:3000/login/?reset=")
	require.GreaterOrEqual(t, idx, 0, "reset link missing from %q", msg.Text)
	line := strings.Fields(msg.Text[idx:])[0]
	u, err := url.Parse(line)
	require.NoError(t, err)
	return u.Query().Get("reset")
}

// ---------- Auth ----------

func TestLogin_RoundTrip(t *testing.T) {
	f := newFixture(t)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	f.seed(t, "Maria", "maria@example.com", hash, domain.RoleEditor)

	sess, err := f.auth.Login(context.Background(), domain.LoginRequest{Username: "  maria ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, sess.Role)
	assert.Equal(t, "Maria", sess.Username)
	assert.Len(t, sess.Token, 64)

	got, err := f.manager.ValidateAndRefresh(context.Background(), sess.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.UserID, got.UserID)

	// email works as identifier too
	_, err = f.auth.Login(context.Background(), domain.LoginRequest{Username: "MARIA@example.com", Password: "correct horse"})
	require.NoError(t, err)
}

func TestLogin_SameErrorForUnknownUserAndWrongPassword(t *testing.T) {
	f := newFixture(t)
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	f.seed(t, "maria", "", hash, domain.RoleViewer)

	_, errUnknown := f.auth.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "x"})
	_, errWrong := f.auth.Login(context.Background(), domain.LoginRequest{Username: "maria", Password: "wrong"})

	assert.ErrorIs(t, errUnknown, service.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, service.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, 0, f.sessions.Len())
}

func TestLogin_UpgradesLegacyPlaintext(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "legacy", "", "plain-secret", domain.RoleAdmin)

	_, err := f.auth.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "plain-secret"})
	require.NoError(t, err)

	u, ok := f.users.Get(1)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2"), "hash not upgraded: %s", u.PasswordHash)

	// the upgraded hash keeps working
	_, err = f.auth.Login(context.Background(), domain.LoginRequest{Username: "legacy", Password: "plain-secret"})
	require.NoError(t, err)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	hash, _ := auth.HashPassword("correct horse")
	f.seed(t, "maria", "", hash, domain.RoleViewer)

	sess, err := f.auth.Login(context.Background(), domain.LoginRequest{Username: "maria", Password: "correct horse"})
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(context.Background(), sess.Token))
	require.NoError(t, f.auth.Logout(context.Background(), sess.Token))

	got, err := f.manager.ValidateAndRefresh(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecover_UnknownEmailSendsNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.auth.Recover(context.Background(), domain.RecoverRequest{Email: "ghost@example.com"}))
	f.drain(t)
	assert.Empty(t, f.box.all())
}

func TestResetPassword_SingleUseAndRevokesSessions(t *testing.T) {
	f := newFixture(t)
	hash, _ := auth.HashPassword("old password")
	f.seed(t, "maria", "maria@example.com", hash, domain.RoleEditor)
	ctx := context.Background()

	sess, err := f.auth.Login(ctx, domain.LoginRequest{Username: "maria", Password: "old password"})
	require.NoError(t, err)

	require.NoError(t, f.auth.Recover(ctx, domain.RecoverRequest{Email: "Maria@Example.com"}))
	f.drain(t)
	msgs := f.box.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "maria@example.com", msgs[0].To)
	token := resetTokenFrom(t, msgs[0])
	require.NotEmpty(t, token)

	u, _ := f.users.Get(1)
	assert.Equal(t, auth.HashToken(token), u.ResetTokenHash, "token must be stored hashed")

	err = f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: "short"})
	assert.ErrorIs(t, err, service.ErrPasswordTooShort)

	require.NoError(t, f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: "new password"}))

	err = f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: "another password"})
	assert.ErrorIs(t, err, service.ErrInvalidResetToken)

	got, err := f.manager.ValidateAndRefresh(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got, "old session must be revoked")
	assert.Equal(t, 0, f.sessions.Len())

	_, err = f.auth.Login(ctx, domain.LoginRequest{Username: "maria", Password: "old password"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = f.auth.Login(ctx, domain.LoginRequest{Username: "maria", Password: "new password"})
	require.NoError(t, err)

	assert.Contains(t, f.bus.subjects, events.PasswordReset)
}

func TestResetPassword_ExpiredTokenIsCleared(t *testing.T) {
	f := newFixture(t)
	hash, _ := auth.HashPassword("old password")
	f.seed(t, "maria", "maria@example.com", hash, domain.RoleEditor)
	ctx := context.Background()

	require.NoError(t, f.auth.Recover(ctx, domain.RecoverRequest{Email: "maria@example.com"}))
	f.drain(t)
	token := resetTokenFrom(t, f.box.all()[0])

	f.now = f.now.Add(2 * time.Hour)
	err := f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: "new password"})
	assert.ErrorIs(t, err, service.ErrInvalidResetToken)

	u, _ := f.users.Get(1)
	assert.Empty(t, u.ResetTokenHash)
	assert.Nil(t, u.ResetExpiresAt)
}

func TestResetPassword_LengthCountsCharactersAndCapsBytes(t *testing.T) {
	f := newFixture(t)
	hash, _ := auth.HashPassword("old password")
	f.seed(t, "maria", "maria@example.com", hash, domain.RoleEditor)
	ctx := context.Background()

	require.NoError(t, f.auth.Recover(ctx, domain.RecoverRequest{Email: "maria@example.com"}))
	f.drain(t)
	token := resetTokenFrom(t, f.box.all()[0])

	// 4 characters, 8 bytes
	err := f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: strings.Repeat("ñ", 4)})
	assert.ErrorIs(t, err, service.ErrPasswordTooShort)

	// 40 characters, 80 bytes
	err = f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: strings.Repeat("ñ", 40)})
	assert.ErrorIs(t, err, service.ErrPasswordTooLong)

	// rejected attempts leave the token usable
	require.NoError(t, f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: token, Password: strings.Repeat("ñ", 36)}))
	_, err = f.auth.Login(ctx, domain.LoginRequest{Username: "maria", Password: strings.Repeat("ñ", 36)})
	require.NoError(t, err)
}

func TestResetPassword_NewRequestSupersedesOld(t *testing.T) {
	f := newFixture(t)
	hash, _ := auth.HashPassword("old password")
	f.seed(t, "maria", "maria@example.com", hash, domain.RoleEditor)
	ctx := context.Background()

	require.NoError(t, f.auth.Recover(ctx, domain.RecoverRequest{Email: "maria@example.com"}))
	require.NoError(t, f.auth.Recover(ctx, domain.RecoverRequest{Email: "maria@example.com"}))
	f.drain(t)
	msgs := f.box.all()
	require.Len(t, msgs, 2)

	first, second := resetTokenFrom(t, msgs[0]), resetTokenFrom(t, msgs[1])
	// background sends may finish in any order
	u, _ := f.users.Get(1)
	if auth.HashToken(first) == u.ResetTokenHash {
		first, second = second, first
	}

	err := f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: first, Password: "new password"})
	assert.ErrorIs(t, err, service.ErrInvalidResetToken)
	require.NoError(t, f.auth.ResetPassword(ctx, domain.ResetPasswordRequest{Token: second, Password: "new password"}))
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.cfg.Auth.AdminPassword = "admin-password"
	f.auth = service.NewAuthService(f.users, f.manager, f.mail, f.bus, f.cfg)
	ctx := context.Background()

	require.NoError(t, f.auth.EnsureAdmin(ctx))
	require.NoError(t, f.auth.EnsureAdmin(ctx))

	u, ok := f.users.Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	_, ok = f.users.Get(2)
	assert.False(t, ok)

	_, err := f.auth.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin-password"})
	require.NoError(t, err)
}

func TestEnsureAdmin_GeneratesPassword(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.auth.EnsureAdmin(context.Background()))
	u, ok := f.users.Get(1)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2"))
}

// ---------- Leads ----------

func TestLeadService(t *testing.T) {
	f := newFixture(t)
	f.cfg.Email.LeadsNotifyTo = "ventas@example.com"
	mail := mailer.NewDispatcher(f.box, f.cfg.Email, "")
	leads := service.NewLeadService(memory.NewLeads(), mail, f.bus)
	ctx := context.Background()

	in := domain.LeadInput{Name: " Luis  Pérez ", Email: "LUIS@example.com", Phone: "+58 412-555-0101"}
	in.Normalize()
	lead, err := leads.Create(ctx, in, "203.0.113.4", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadNew, lead.Status)
	assert.Equal(t, "Luis Pérez", lead.Name)
	assert.Equal(t, "203.0.113.4", lead.IP)

	require.NoError(t, mail.Wait(context.Background()))
	msgs := f.box.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ventas@example.com", msgs[0].To)

	require.NoError(t, leads.UpdateStatus(ctx, lead.ID, domain.LeadContacted, "maria"))
	assert.ErrorIs(t, leads.UpdateStatus(ctx, 999, domain.LeadContacted, "maria"), domain.ErrNotFound)
	assert.Error(t, leads.UpdateStatus(ctx, lead.ID, "archivado", "maria"))

	list, err := leads.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.LeadContacted, list[0].Status)

	assert.Contains(t, f.bus.subjects, events.LeadCreated)
	assert.Contains(t, f.bus.subjects, events.LeadStatusChanged)
}

// ---------- Receipts ----------

func newReceiptService(t *testing.T, f *fixture, sender mailer.Sender) *service.ReceiptService {
	t.Helper()
	blobs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	store := receipts.NewStore(memory.NewReceipts(), blobs)
	return service.NewReceiptService(store, mailer.NewDispatcher(sender, f.cfg.Email, ""), f.bus, f.cfg)
}

func TestReceiptService_RegisterSendsReceipt(t *testing.T) {
	f := newFixture(t)
	svc := newReceiptService(t, f, f.box)
	ctx := context.Background()

	in := domain.ReceiptInput{
		ClientName:  "Carlos",
		ClientEmail: "carlos@example.com",
		Concept:     "Asesoría visa",
		Amount:      "125.5",
		Method:      "Zelle",
	}
	in.Normalize()
	res, err := svc.Register(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int64(1), res.ReceiptID)
	assert.True(t, res.ReceiptSaved)
	assert.True(t, res.EmailSent)
	assert.Empty(t, res.EmailError)

	msgs := f.box.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "carlos@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].HTML, "$125.50")

	link, err := svc.Link(1)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/recibo/1", u.Path)
	assert.True(t, svc.VerifyLink(1, u.Query().Get("t")))
	assert.False(t, svc.VerifyLink(2, u.Query().Get("t")))

	assert.Contains(t, f.bus.subjects, events.ReceiptCreated)
}

func TestReceiptService_RegisterWithoutEmailProvider(t *testing.T) {
	f := newFixture(t)
	svc := newReceiptService(t, f, mailer.Disabled{})

	in := domain.ReceiptInput{ClientName: "Ana", ClientEmail: "ana@example.com", Concept: "Cita", Amount: "50", Method: "Efectivo"}
	in.Normalize()
	res, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.EmailSent)
	assert.NotEmpty(t, res.EmailError)
}

func TestReceiptService_TipsAndResult(t *testing.T) {
	f := newFixture(t)
	svc := newReceiptService(t, f, f.box)
	ctx := context.Background()

	noEmail := domain.ReceiptInput{ClientName: "Sin correo", Concept: "Cita", Amount: "10", Method: "Efectivo"}
	noEmail.Normalize()
	_, err := svc.Register(ctx, noEmail)
	require.NoError(t, err)

	err = svc.SendTips(ctx, domain.TipsRequest{ClientID: 1, AppointmentDate: "2026-04-01", Message: "x"})
	assert.ErrorIs(t, err, service.ErrNoRecipient)

	err = svc.SendTips(ctx, domain.TipsRequest{ClientID: 99, AppointmentDate: "2026-04-01", Message: "x"})
	assert.ErrorIs(t, err, receipts.ErrNotFound)

	withEmail := domain.ReceiptInput{ClientName: "Ana", ClientEmail: "ana@example.com", Concept: "Cita", Amount: "10", Method: "Efectivo"}
	withEmail.Normalize()
	_, err = svc.Register(ctx, withEmail)
	require.NoError(t, err)

	require.NoError(t, svc.SendTips(ctx, domain.TipsRequest{ClientID: 2, AppointmentDate: "2026-04-01", Message: "Llega temprano"}))
	require.NoError(t, svc.SendResult(ctx, domain.ResultRequest{ClientID: 2, Status: "Aprobada", Message: "Felicidades"}))
	assert.Len(t, f.box.all(), 3)
}

func TestReceiptService_Delete(t *testing.T) {
	f := newFixture(t)
	svc := newReceiptService(t, f, f.box)
	ctx := context.Background()

	in := domain.ReceiptInput{ClientName: "Ana", Concept: "Cita", Amount: "10", Method: "Efectivo"}
	in.Normalize()
	_, err := svc.Register(ctx, in)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, "admin"))
	assert.ErrorIs(t, svc.Delete(ctx, 1, "admin"), receipts.ErrNotFound)
	assert.Contains(t, f.bus.subjects, events.ReceiptDeleted)
}
