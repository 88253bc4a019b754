package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/platform/assistant"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

type AIHandler struct {
	Assistant *assistant.Client
}

func NewAIHandler(a *assistant.Client) *AIHandler {
	return &AIHandler{Assistant: a}
}

func (h *AIHandler) Routes(r chi.Router) {
	r.Post("/tips", h.tips)
	r.Post("/resultado", h.result)
}

func (h *AIHandler) tips(w http.ResponseWriter, r *http.Request) {
	var in domain.AITipsRequest
	if !decode(w, r, &in) {
		return
	}
	text, err := h.Assistant.Tips(r.Context(), in.Profile, in.AppointmentDate)
	h.write(w, r, text, err, "Error al generar tips")
}

func (h *AIHandler) result(w http.ResponseWriter, r *http.Request) {
	var in domain.AIResultRequest
	if !decode(w, r, &in) {
		return
	}
	text, err := h.Assistant.Result(r.Context(), in.Status, in.Detail)
	h.write(w, r, text, err, "Error al redactar mensaje")
}

func (h *AIHandler) write(w http.ResponseWriter, r *http.Request, text string, err error, failMsg string) {
	switch {
	case err == nil:
		response.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "text": text})
	case errors.Is(err, assistant.ErrNotConfigured):
		response.NotConfigured(w, "Falta configurar OPENAI_API_KEY")
	case errors.Is(err, assistant.ErrMissingStatus):
		response.BadRequest(w, "Falta estado")
	default:
		logger.ErrorContext(r.Context(), "Assistant request failed", "error", err)
		response.Upstream(w, failMsg)
	}
}
