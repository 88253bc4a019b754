package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
	"github.com/diagnosis/pillatuvisa-backoffice/internal/http/response"
	"github.com/diagnosis/pillatuvisa-backoffice/pkg/logger"
)

const maxBodyBytes = 1 << 20

type normalizer interface {
	Normalize()
}

// decode reads a JSON body into dst, normalizes and validates it. On failure
// it writes a 400 and returns false; the validation detail is only logged.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.WriteError(w, http.StatusRequestEntityTooLarge, "Solicitud demasiado grande", response.CodeInvalidInput)
			return false
		}
		logger.WarnContext(r.Context(), "Invalid JSON body", "error", err)
		response.BadRequest(w, "JSON inválido")
		return false
	}
	if n, ok := dst.(normalizer); ok {
		n.Normalize()
	}
	if err := domain.Validate(dst); err != nil {
		logger.WarnContext(r.Context(), "Request validation failed", "path", r.URL.Path, "error", err)
		response.BadRequest(w, "Faltan datos obligatorios o son inválidos")
		return false
	}
	return true
}

// pathID parses the {id} URL parameter as a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "ID inválido")
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}
