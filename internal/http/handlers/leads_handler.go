package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/middleware"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/service"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/utils"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

const maxUserAgentBytes = 512

type LeadHandler struct {
	Leads *service.LeadService
}

func NewLeadHandler(leads *service.LeadService) *LeadHandler {
	return &LeadHandler{Leads: leads}
}

func (h *LeadHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.LeadInput
	if !decode(w, r, &in) {
		return
	}
	ua := utils.Truncate(r.UserAgent(), maxUserAgentBytes)
	lead, err := h.Leads.Create(r.Context(), in, utils.ClientIP(r), ua)
	if err != nil {
		logger.ErrorContext(r.Context(), "Lead create failed", "error", err)
		response.InternalError(w, "Error al guardar el contacto")
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": lead.ID, "mensaje": "Gracias, te contactaremos pronto"})
}

func (h *LeadHandler) list(w http.ResponseWriter, r *http.Request) {
	leads, err := h.Leads.List(r.Context(), queryLimit(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "Lead list failed", "error", err)
		response.InternalError(w, "Error al listar potenciales")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "potenciales": leads})
}

func (h *LeadHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in domain.LeadStatusRequest
	if !decode(w, r, &in) {
		return
	}
	by := ""
	if s := middleware.SessionFrom(r.Context()); s != nil {
		by = s.Username
	}

	err := h.Leads.UpdateStatus(r.Context(), id, in.Status, by)
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(w, "Potencial no encontrado")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Lead status update failed", "lead_id", id, "error", err)
		response.InternalError(w, "Error al actualizar el estado")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "estado": in.Status})
}

// PublicRoutes mounts the capture form endpoint.
func (h *LeadHandler) PublicRoutes(r chi.Router) {
	r.Post("/potenciales", h.create)
}

func (h *LeadHandler) StaffRoutes(r chi.Router, g *middleware.Guard) {
	r.Get("/potenciales", h.list)
	r.With(g.Require(domain.RoleAdmin, domain.RoleEditor)).Post("/potenciales/{id}/estado", h.updateStatus)
}
