package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/middleware"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/mailer"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/receipts"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/service"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

type ReceiptHandler struct {
	Receipts *service.ReceiptService
}

func NewReceiptHandler(receipts *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{Receipts: receipts}
}

func (h *ReceiptHandler) register(w http.ResponseWriter, r *http.Request) {
	var in domain.ReceiptInput
	if !decode(w, r, &in) {
		return
	}

	out, err := h.Receipts.Register(r.Context(), in)
	if err != nil {
		logger.ErrorContext(r.Context(), "Receipt insert failed", "error", err)
		response.InternalError(w, "Error al guardar en la base de datos")
		return
	}
	logger.InfoContext(r.Context(), "Receipt registered",
		"receipt_id", out.ReceiptID, "snapshot_saved", out.ReceiptSaved, "email_sent", out.EmailSent)
	response.WriteJSON(w, http.StatusCreated, out)
}

func (h *ReceiptHandler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Receipts.Store().List(r.Context(), queryLimit(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "Receipt list failed", "error", err)
		response.InternalError(w, "Error al listar recibos")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "recibos": rows})
}

func (h *ReceiptHandler) clients(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Receipts.Store().Clients(r.Context(), queryLimit(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "Client list failed", "error", err)
		response.InternalError(w, "Error al listar clientes")
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "clients": rows})
}

func (h *ReceiptHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	by := ""
	if s := middleware.SessionFrom(r.Context()); s != nil {
		by = s.Username
	}

	err := h.Receipts.Delete(r.Context(), id, by)
	if errors.Is(err, receipts.ErrNotFound) {
		response.NotFound(w, "Recibo no encontrado")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Receipt delete failed", "receipt_id", id, "error", err)
		response.InternalError(w, "Error al eliminar el recibo")
		return
	}
	logger.InfoContext(r.Context(), "Receipt deleted", "receipt_id", id)
	response.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// canView admits staff sessions and holders of a valid share link.
func (h *ReceiptHandler) canView(w http.ResponseWriter, r *http.Request, id int64) bool {
	if middleware.SessionFrom(r.Context()) != nil {
		return true
	}
	if t := r.URL.Query().Get("t"); t != "" && h.Receipts.VerifyLink(id, t) {
		return true
	}
	response.Unauthorized(w, "Enlace inválido o expirado")
	return false
}

func (h *ReceiptHandler) page(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok || !h.canView(w, r, id) {
		return
	}

	doc, err := h.Receipts.Store().Get(r.Context(), id)
	if errors.Is(err, receipts.ErrNotFound) {
		http.Error(w, "Recibo no encontrado", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Receipt render failed", "receipt_id", id, "error", err)
		http.Error(w, "Error al generar el recibo", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(doc.HTML)
}

func (h *ReceiptHandler) pdf(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok || !h.canView(w, r, id) {
		return
	}

	data, err := h.Receipts.Store().PDF(r.Context(), id)
	if errors.Is(err, receipts.ErrNotFound) {
		response.NotFound(w, "Recibo no encontrado")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Receipt PDF failed", "receipt_id", id, "error", err)
		response.InternalError(w, "Error al generar el PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="recibo-%d.pdf"`, id))
	w.Write(data)
}

func (h *ReceiptHandler) tips(w http.ResponseWriter, r *http.Request) {
	var in domain.TipsRequest
	if !decode(w, r, &in) {
		return
	}
	err := h.Receipts.SendTips(r.Context(), in)
	if h.writeNotifyError(w, r, err) {
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "error": false, "mensaje": "Tips enviados correctamente"})
}

func (h *ReceiptHandler) result(w http.ResponseWriter, r *http.Request) {
	var in domain.ResultRequest
	if !decode(w, r, &in) {
		return
	}
	err := h.Receipts.SendResult(r.Context(), in)
	if h.writeNotifyError(w, r, err) {
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "error": false, "mensaje": "Resultado notificado correctamente"})
}

// writeNotifyError maps a client email failure to a response and reports
// whether one was written.
func (h *ReceiptHandler) writeNotifyError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, receipts.ErrNotFound):
		response.NotFound(w, "Cliente no encontrado")
	case errors.Is(err, service.ErrNoRecipient):
		response.BadRequest(w, "El cliente no tiene email registrado")
	case errors.Is(err, mailer.ErrNotConfigured):
		response.NotConfigured(w, "El envío de email no está configurado")
	default:
		logger.ErrorContext(r.Context(), "Client email failed", "error", err)
		response.Upstream(w, "No se pudo enviar el email")
	}
	return true
}

// StaffRoutes mounts the receipt routes that need a session. Guard must
// already have authenticated the request.
func (h *ReceiptHandler) StaffRoutes(r chi.Router, g *middleware.Guard) {
	writers := g.Require(domain.RoleAdmin, domain.RoleEditor)

	r.With(writers).Post("/register", h.register)
	r.With(writers).Post("/tips", h.tips)
	r.With(writers).Post("/resultado", h.result)
	r.Get("/recibos", h.list)
	r.With(g.Require(domain.RoleAdmin)).Delete("/recibos/{id}", h.delete)
	r.Get("/clients", h.clients)
}

// PublicRoutes serves receipt documents to staff or share-link holders.
func (h *ReceiptHandler) PublicRoutes(r chi.Router, g *middleware.Guard) {
	r.With(g.Optional).Get("/recibo/{id}", h.page)
	r.With(g.Optional).Get("/recibo/{id}/pdf", h.pdf)
}
