// Package receipts keeps receipt records together with their rendered HTML
// snapshot and notes sidecar.
package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/blob"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/metrics"
)

var ErrNotFound = errors.New("receipt not found")

const (
	DefaultListLimit = 200
	MaxListLimit     = 500
)

type Repo interface {
	Create(ctx context.Context, in domain.ReceiptInput) (*domain.Receipt, error)
	// Get returns nil, nil for an unknown id.
	Get(ctx context.Context, id int64) (*domain.Receipt, error)
	List(ctx context.Context, limit int) ([]domain.Receipt, error)
	ListClients(ctx context.Context, limit int) ([]domain.ClientSummary, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type sidecar struct {
	Notes string `json:"notas,omitempty"`
}

type CreateResult struct {
	Receipt       *domain.Receipt
	SnapshotSaved bool
	SnapshotErr   error
	NotesSaved    bool
	NotesErr      error
}

type Rendered struct {
	HTML         []byte
	FromSnapshot bool
}

type Store struct {
	repo  Repo
	blobs blob.Store
	now   func() time.Time
}

func NewStore(repo Repo, blobs blob.Store) *Store {
	return &Store{repo: repo, blobs: blobs, now: time.Now}
}

// WithClock replaces the time source used for issue dates.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func snapshotKey(id int64) string { return fmt.Sprintf("recibo-%d.html", id) }
func sidecarKey(id int64) string  { return fmt.Sprintf("recibo-%d.json", id) }

// ClampLimit applies the list default and ceiling.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Create inserts the record and then persists its snapshot and notes sidecar
// independently. Their failures are reported in the result; the record stays.
func (s *Store) Create(ctx context.Context, in domain.ReceiptInput) (*CreateResult, error) {
	rec, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	metrics.ReceiptsCreated.Inc()

	res := &CreateResult{Receipt: rec, SnapshotSaved: true, NotesSaved: true}
	html := RenderReceipt(*rec, in.Notes, s.now())
	if err := s.blobs.Put(ctx, snapshotKey(rec.ID), html, "text/html; charset=utf-8"); err != nil {
		logger.ErrorContext(ctx, "Receipt snapshot write failed", "receipt_id", rec.ID, "error", err)
		res.SnapshotSaved = false
		res.SnapshotErr = err
	}

	if err := s.writeNotes(ctx, rec.ID, in.Notes); err != nil {
		logger.ErrorContext(ctx, "Receipt sidecar write failed", "receipt_id", rec.ID, "error", err)
		res.NotesSaved = false
		res.NotesErr = err
	}
	return res, nil
}

// writeNotes stores the sidecar, or removes a leftover one when there are no
// notes so an id reused by a fresh store never inherits old notes.
func (s *Store) writeNotes(ctx context.Context, id int64, notes string) error {
	if notes == "" {
		return s.blobs.Delete(ctx, sidecarKey(id))
	}
	payload, err := json.Marshal(sidecar{Notes: notes})
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, sidecarKey(id), payload, "application/json")
}

// Get prefers the stored snapshot and renders from the record, dated today,
// when there is none.
func (s *Store) Get(ctx context.Context, id int64) (*Rendered, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	html, err := s.blobs.Get(ctx, snapshotKey(id))
	if err == nil {
		return &Rendered{HTML: html, FromSnapshot: true}, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		logger.WarnContext(ctx, "Receipt snapshot read failed, rendering", "receipt_id", id, "error", err)
	}
	return &Rendered{HTML: RenderReceipt(*rec, s.notes(ctx, id), s.now())}, nil
}

// Record returns the structured receipt.
func (s *Store) Record(ctx context.Context, id int64) (*domain.Receipt, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns newest receipts first, each with its sidecar notes.
func (s *Store) List(ctx context.Context, limit int) ([]domain.ReceiptSummary, error) {
	rows, err := s.repo.List(ctx, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	out := make([]domain.ReceiptSummary, 0, len(rows))
	for _, rec := range rows {
		out = append(out, domain.ReceiptSummary{Receipt: rec, Notes: s.notes(ctx, rec.ID)})
	}
	return out, nil
}

func (s *Store) Clients(ctx context.Context, limit int) ([]domain.ClientSummary, error) {
	rows, err := s.repo.ListClients(ctx, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return rows, nil
}

// Delete removes the record, then best-effort removes snapshot and sidecar.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete receipt: %w", err)
	}
	if !ok {
		return false, nil
	}
	for _, key := range []string{snapshotKey(id), sidecarKey(id)} {
		if err := s.blobs.Delete(ctx, key); err != nil {
			logger.WarnContext(ctx, "Receipt artifact delete failed", "key", key, "error", err)
		}
	}
	return true, nil
}

func (s *Store) notes(ctx context.Context, id int64) string {
	raw, err := s.blobs.Get(ctx, sidecarKey(id))
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			logger.WarnContext(ctx, "Receipt sidecar read failed", "receipt_id", id, "error", err)
		}
		return ""
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		logger.WarnContext(ctx, "Receipt sidecar is not valid JSON", "receipt_id", id, "error", err)
		return ""
	}
	return sc.Notes
}
