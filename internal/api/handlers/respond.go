package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/analysis"
	"github.com/nikhilbhutani/pdfaccess/internal/bulk"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
	"github.com/nikhilbhutani/pdfaccess/internal/storage"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

type errorBody struct {
	Error string                   `json:"error"`
	Kind  remediation.ErrorKind    `json:"kind,omitempty"`
	From  models.RemediationStatus `json:"from,omitempty"`
	To    models.RemediationStatus `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func classifyError(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var it *remediation.InvalidTransitionError
	switch {
	case errors.As(err, &it):
		body.Kind = remediation.KindInvalidTransition
		body.From, body.To = it.From, it.To
		return http.StatusConflict, body
	case errors.Is(err, remediation.ErrOperationInProgress), errors.Is(err, queue.ErrDuplicate):
		return http.StatusConflict, body
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, bulk.ErrEmptyFilter), errors.Is(err, bulk.ErrInvalidOperation), errors.Is(err, bulk.ErrMissingApprover),
		errors.Is(err, analysis.ErrNoDocuments), errors.Is(err, analysis.ErrTooManyDocuments):
		return http.StatusBadRequest, body
	}

	switch kind := remediation.KindOf(err); kind {
	case remediation.KindContextUnavailable:
		body.Kind = kind
		return http.StatusUnprocessableEntity, body
	case remediation.KindGenerationFailed, remediation.KindImplementationFailed:
		body.Kind = kind
		return http.StatusBadGateway, body
	case remediation.KindTimeout:
		body.Kind = kind
		return http.StatusGatewayTimeout, body
	}

	return http.StatusInternalServerError, errorBody{Error: "internal error"}
}

func idParam(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}
