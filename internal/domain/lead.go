package domain

import (
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/utils"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "nuevo"
	LeadContacted LeadStatus = "contactado"
	LeadDiscarded LeadStatus = "descartado"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadDiscarded:
		return true
	}
	return false
}

type Lead struct {
	ID        int64      `json:"id"`
	Name      string     `json:"nombre"`
	Email     string     `json:"email"`
	Phone     string     `json:"telefono"`
	Message   string     `json:"mensaje"`
	IP        string     `json:"ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	Status    LeadStatus `json:"estado"`
	CreatedAt time.Time  `json:"creado_en"`
	UpdatedAt time.Time  `json:"actualizado_en"`
}

type LeadInput struct {
	Name    string `json:"nombre" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"telefono" validate:"max=40"`
	Message string `json:"mensaje" validate:"max=4000"`
}

func (in *LeadInput) Normalize() {
	in.Name = utils.NormalizeString(in.Name)
	in.Email = utils.NormalizeEmail(in.Email)
	in.Phone = utils.NormalizePhone(in.Phone)
	in.Message = utils.NormalizeString(in.Message)
}

type LeadStatusRequest struct {
	Status LeadStatus `json:"estado" validate:"required,oneof=nuevo contactado descartado"`
}
