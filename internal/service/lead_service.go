package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/mailer"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/receipts"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/events"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

type LeadRepository interface {
	Create(ctx context.Context, l domain.Lead) (*domain.Lead, error)
	List(ctx context.Context, limit int) ([]domain.Lead, error)
	UpdateStatus(ctx context.Context, id int64, status domain.LeadStatus) (bool, error)
}

type LeadService struct {
	leads LeadRepository
	mail  *mailer.Dispatcher
	bus   events.Publisher
}

func NewLeadService(leads LeadRepository, mail *mailer.Dispatcher, bus events.Publisher) *LeadService {
	return &LeadService{leads: leads, mail: mail, bus: bus}
}

// Create stores a lead captured by the public form and alerts staff in the
// background.
func (s *LeadService) Create(ctx context.Context, in domain.LeadInput, ip, userAgent string) (*domain.Lead, error) {
	lead, err := s.leads.Create(ctx, domain.Lead{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		Message:   in.Message,
		IP:        ip,
		UserAgent: userAgent,
		Status:    domain.LeadNew,
	})
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	events.Emit(ctx, s.bus, events.LeadCreated, events.LeadCreatedEvent{
		LeadID:    lead.ID,
		Email:     lead.Email,
		CreatedAt: lead.CreatedAt,
	})

	alert := *lead
	s.mail.Go(ctx, mailer.KindLeadAlert, func(ctx context.Context) error {
		return s.mail.SendLeadAlert(ctx, alert)
	})
	logger.InfoContext(ctx, "Lead captured", "lead_id", lead.ID)
	return lead, nil
}

func (s *LeadService) List(ctx context.Context, limit int) ([]domain.Lead, error) {
	leads, err := s.leads.List(ctx, receipts.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// UpdateStatus returns domain.ErrNotFound for an unknown lead.
func (s *LeadService) UpdateStatus(ctx context.Context, id int64, status domain.LeadStatus, by string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid lead status %q", status)
	}
	found, err := s.leads.UpdateStatus(ctx, id, status)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if !found {
		return domain.ErrNotFound
	}
	events.Emit(ctx, s.bus, events.LeadStatusChanged, events.LeadStatusChangedEvent{
		LeadID:    id,
		Status:    string(status),
		ChangedBy: by,
		ChangedAt: time.Now().UTC(),
	})
	return nil
}
