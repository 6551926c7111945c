package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
)

type DocumentService interface {
	Analyze(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error)
	Report(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error)
	Export(ctx context.Context, documentID uuid.UUID) (*models.ExportReport, error)
	Issues(ctx context.Context, documentID uuid.UUID) ([]models.Issue, error)
}

type DocumentGetter interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

type AnalyzeEnqueuer interface {
	EnqueueDocumentAnalyze(ctx context.Context, payload queue.DocumentAnalyzePayload) (string, error)
}

type DocumentHandler struct {
	svc   DocumentService
	docs  DocumentGetter
	queue AnalyzeEnqueuer
}

// NewDocumentHandler builds the document routes. With a nil queue, analysis
// runs inside the request.
func NewDocumentHandler(svc DocumentService, docs DocumentGetter, q AnalyzeEnqueuer) *DocumentHandler {
	return &DocumentHandler{svc: svc, docs: docs, queue: q}
}

func (h *DocumentHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "document")
	if !ok {
		return
	}
	if _, err := h.docs.GetDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	if h.queue == nil {
		report, err := h.svc.Analyze(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	taskID, err := h.queue.EnqueueDocumentAnalyze(r.Context(), queue.DocumentAnalyzePayload{DocumentID: id.String()})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": id.String(),
		"task_id":     taskID,
		"status":      "queued",
	})
}

// Report returns the export report computed from the current issues and
// remediation records.
func (h *DocumentHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "document")
	if !ok {
		return
	}
	if _, err := h.docs.GetDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.svc.Export(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *DocumentHandler) Score(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "document")
	if !ok {
		return
	}
	if _, err := h.docs.GetDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.svc.Report(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *DocumentHandler) Issues(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "document")
	if !ok {
		return
	}
	if _, err := h.docs.GetDocument(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	issues, err := h.svc.Issues(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues, "count": len(issues)})
}
