package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("pillatuvisa-backoffice"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

// NoopBus discards events when no broker is configured.
type NoopBus struct{}

func (NoopBus) Publish(context.Context, string, interface{}) error { return nil }
func (NoopBus) Close() error                                       { return nil }

// Emit publishes and logs failures. Events are advisory, so callers never fail
// a request because the broker is down.
func Emit(ctx context.Context, pub Publisher, subject string, data interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "Event publish failed", "subject", subject, "error", err)
	}
}

// Event subjects
const (
	ReceiptCreated     = "backoffice.receipt.created"
	ReceiptDeleted     = "backoffice.receipt.deleted"
	LeadCreated        = "backoffice.lead.created"
	LeadStatusChanged  = "backoffice.lead.status_changed"
	PasswordReset      = "backoffice.auth.password_reset"
	NotificationFailed = "backoffice.notify.failed"
)

type ReceiptCreatedEvent struct {
	ReceiptID     int64     `json:"receipt_id"`
	ClientEmail   string    `json:"client_email"`
	Amount        string    `json:"amount"`
	SnapshotSaved bool      `json:"snapshot_saved"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReceiptDeletedEvent struct {
	ReceiptID int64     `json:"receipt_id"`
	DeletedBy string    `json:"deleted_by"`
	DeletedAt time.Time `json:"deleted_at"`
}

type LeadCreatedEvent struct {
	LeadID    int64     `json:"lead_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type LeadStatusChangedEvent struct {
	LeadID    int64     `json:"lead_id"`
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type PasswordResetEvent struct {
	UserID  int64     `json:"user_id"`
	ResetAt time.Time `json:"reset_at"`
}

type NotificationFailedEvent struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}
