package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/mailer"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/receipts"
	pkgauth "github.com/diagnosis/pillatuvisa-backoffice/pkg/auth"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/config"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/events"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

var ErrNoRecipient = errors.New("receipt has no email address")

// ReceiptService registers receipts and sends the client-facing emails that
// hang off them.
type ReceiptService struct {
	store   *receipts.Store
	mail    *mailer.Dispatcher
	bus     events.Publisher
	secret  string
	linkTTL time.Duration
	baseURL string
	now     func() time.Time
}

func NewReceiptService(store *receipts.Store, mail *mailer.Dispatcher, bus events.Publisher, cfg *config.Config) *ReceiptService {
	return &ReceiptService{
		store:   store,
		mail:    mail,
		bus:     bus,
		secret:  cfg.Auth.JWTSecret,
		linkTTL: cfg.Auth.ReceiptLinkTTL,
		baseURL: cfg.App.BaseURL,
		now:     time.Now,
	}
}

func (s *ReceiptService) Store() *receipts.Store { return s.store }

// Link returns a signed, time-boxed URL to the receipt page.
func (s *ReceiptService) Link(id int64) (string, error) {
	tok, err := pkgauth.NewReceiptLink(id, s.secret, s.linkTTL, s.now())
	if err != nil {
		return "", err
	}
	return s.baseURL + "/recibo/" + strconv.FormatInt(id, 10) + "?t=" + tok, nil
}

// VerifyLink reports whether token grants access to receipt id.
func (s *ReceiptService) VerifyLink(id int64, token string) bool {
	got, err := pkgauth.ParseReceiptLink(token, s.secret)
	return err == nil && got == id
}

// Register saves the receipt and, when the client has an email, sends it
// right away. Snapshot and email failures are reported, not returned.
func (s *ReceiptService) Register(ctx context.Context, in domain.ReceiptInput) (*domain.RegisterResponse, error) {
	res, err := s.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	rec := res.Receipt

	out := &domain.RegisterResponse{
		OK:           true,
		Message:      "Recibo guardado correctamente",
		ReceiptID:    rec.ID,
		ReceiptSaved: res.SnapshotSaved,
		NotesSaved:   res.NotesSaved,
	}
	if res.SnapshotErr != nil {
		out.SnapshotError = "No se pudo guardar la copia del recibo"
	}
	if res.NotesErr != nil {
		out.NotesError = "No se pudieron guardar las notas del recibo"
	}

	amount, _ := rec.Amount.Format()
	events.Emit(ctx, s.bus, events.ReceiptCreated, events.ReceiptCreatedEvent{
		ReceiptID:     rec.ID,
		ClientEmail:   rec.ClientEmail,
		Amount:        amount,
		SnapshotSaved: res.SnapshotSaved,
		CreatedAt:     rec.CreatedAt,
	})

	if rec.ClientEmail == "" {
		return out, nil
	}
	if err := s.sendReceipt(ctx, *rec); err != nil {
		out.EmailError = emailErrorMessage(err)
		return out, nil
	}
	out.EmailSent = true
	return out, nil
}

func (s *ReceiptService) sendReceipt(ctx context.Context, rec domain.Receipt) error {
	link, err := s.Link(rec.ID)
	if err != nil {
		return err
	}
	if err := s.mail.SendReceipt(ctx, rec, link); err != nil {
		s.notifyFailed(ctx, mailer.KindReceipt, rec.ClientEmail, err)
		return err
	}
	return nil
}

// SendTips emails interview tips to the client of receipt req.ClientID.
func (s *ReceiptService) SendTips(ctx context.Context, req domain.TipsRequest) error {
	rec, err := s.recipient(ctx, int64(req.ClientID))
	if err != nil {
		return err
	}
	if err := s.mail.SendTips(ctx, *rec, req); err != nil {
		s.notifyFailed(ctx, mailer.KindTips, rec.ClientEmail, err)
		return err
	}
	return nil
}

// SendResult emails the visa outcome to the client of receipt req.ClientID.
func (s *ReceiptService) SendResult(ctx context.Context, req domain.ResultRequest) error {
	rec, err := s.recipient(ctx, int64(req.ClientID))
	if err != nil {
		return err
	}
	if err := s.mail.SendResult(ctx, *rec, req); err != nil {
		s.notifyFailed(ctx, mailer.KindResult, rec.ClientEmail, err)
		return err
	}
	return nil
}

// Delete removes a receipt; it returns receipts.ErrNotFound for unknown ids.
func (s *ReceiptService) Delete(ctx context.Context, id int64, by string) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return receipts.ErrNotFound
	}
	events.Emit(ctx, s.bus, events.ReceiptDeleted, events.ReceiptDeletedEvent{
		ReceiptID: id,
		DeletedBy: by,
		DeletedAt: s.now().UTC(),
	})
	return nil
}

func (s *ReceiptService) recipient(ctx context.Context, id int64) (*domain.Receipt, error) {
	rec, err := s.store.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.ClientEmail == "" {
		return nil, ErrNoRecipient
	}
	return rec, nil
}

func (s *ReceiptService) notifyFailed(ctx context.Context, kind, to string, err error) {
	if errors.Is(err, mailer.ErrNotConfigured) {
		return
	}
	logger.ErrorContext(ctx, "Email send failed", "kind", kind, "error", err)
	events.Emit(ctx, s.bus, events.NotificationFailed, events.NotificationFailedEvent{
		Kind:      kind,
		Recipient: to,
		Error:     err.Error(),
	})
}

func emailErrorMessage(err error) string {
	if errors.Is(err, mailer.ErrNotConfigured) {
		return "Email no configurado"
	}
	return "No se pudo enviar el email"
}
