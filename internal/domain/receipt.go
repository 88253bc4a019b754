package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/utils"
)

// Amount is a currency value as received or stored. It stays a string so a
// legacy non-numeric value can still be displayed.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// Float parses the amount. A single comma is accepted as decimal separator.
func (a Amount) Float() (float64, bool) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Format renders the amount with exactly two decimals. ok is false when the
// value is not numeric and the raw string is returned.
func (a Amount) Format() (string, bool) {
	f, ok := a.Float()
	if !ok {
		return string(a), false
	}
	return strconv.FormatFloat(f, 'f', 2, 64), true
}

// RefID is a receipt id sent by the client as either a JSON number or a
// numeric string.
type RefID int64

func (r *RefID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*r = 0
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*r = RefID(n)
	return nil
}

type Receipt struct {
	ID          int64     `json:"id"`
	ClientName  string    `json:"nombre"`
	ClientEmail string    `json:"email"`
	Concept     string    `json:"concepto"`
	Amount      Amount    `json:"monto"`
	Method      string    `json:"metodo"`
	CreatedAt   time.Time `json:"creado_en"`
}

type ReceiptInput struct {
	ClientName  string `json:"nombre" validate:"required,max=200"`
	ClientEmail string `json:"email" validate:"omitempty,email,max=254"`
	Concept     string `json:"concepto" validate:"required,max=500"`
	Amount      Amount `json:"monto" validate:"required,money"`
	Method      string `json:"metodo" validate:"required,max=100"`
	Notes       string `json:"notas" validate:"max=4000"`
}

func (in *ReceiptInput) Normalize() {
	in.ClientName = utils.NormalizeString(in.ClientName)
	in.ClientEmail = utils.NormalizeEmail(in.ClientEmail)
	in.Concept = utils.NormalizeString(in.Concept)
	in.Method = utils.NormalizeString(in.Method)
	in.Notes = strings.TrimSpace(in.Notes)
	if f, ok := in.Amount.Float(); ok {
		in.Amount = Amount(strconv.FormatFloat(f, 'f', 2, 64))
	}
}

// ReceiptSummary is a list row enriched with the notes sidecar.
type ReceiptSummary struct {
	Receipt
	Notes string `json:"notas,omitempty"`
}

type ClientSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

type RegisterResponse struct {
	OK            bool   `json:"ok"`
	Error         bool   `json:"error"`
	Message       string `json:"mensaje"`
	ReceiptID     int64  `json:"reciboId"`
	ReceiptSaved  bool   `json:"receiptSaved"`
	SnapshotError string `json:"snapshotError,omitempty"`
	NotesSaved    bool   `json:"notesSaved"`
	NotesError    string `json:"notesError,omitempty"`
	EmailSent     bool   `json:"emailSent"`
	EmailError    string `json:"emailError,omitempty"`
}

type TipsRequest struct {
	ClientID        RefID  `json:"clienteId" validate:"required,gt=0"`
	AppointmentDate string `json:"fechaCita" validate:"required,max=100"`
	Profile         string `json:"perfil" validate:"max=2000"`
	Message         string `json:"mensaje" validate:"required,max=20000"`
}

type ResultRequest struct {
	ClientID RefID  `json:"clienteId" validate:"required,gt=0"`
	Status   string `json:"estado" validate:"required,max=100"`
	Detail   string `json:"detalle" validate:"max=2000"`
	Message  string `json:"mensaje" validate:"required,max=20000"`
}

type AITipsRequest struct {
	Profile         string `json:"perfil" validate:"max=2000"`
	AppointmentDate string `json:"fechaCita" validate:"max=100"`
}

type AIResultRequest struct {
	Status string `json:"estado" validate:"required,max=100"`
	Detail string `json:"detalle" validate:"max=2000"`
}
