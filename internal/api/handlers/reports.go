package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

type Summarizer interface {
	Summary(ctx context.Context, documentIDs []uuid.UUID) (*models.AnalyticsSummary, error)
}

// UsageReporter reads aggregated LLM usage.
type UsageReporter interface {
	UsageSummary(ctx context.Context, startDate, endDate *time.Time) ([]models.UsageSummary, error)
}

type ReportsHandler struct {
	summary Summarizer
	usage   UsageReporter
}

func NewReportsHandler(summary Summarizer, usage UsageReporter) *ReportsHandler {
	return &ReportsHandler{summary: summary, usage: usage}
}

// Summary aggregates the documents named in the comma separated
// document_ids query parameter. The parameter may also be repeated.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	for _, v := range r.URL.Query()["document_ids"] {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				writeMessage(w, http.StatusBadRequest, "invalid document ID: "+raw)
				return
			}
			ids = append(ids, id)
		}
	}

	summary, err := h.summary.Summary(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Usage reports LLM spend per provider and model. from and to are optional
// RFC 3339 bounds.
func (h *ReportsHandler) Usage(w http.ResponseWriter, r *http.Request) {
	start, ok := timeParam(w, r, "from")
	if !ok {
		return
	}
	end, ok := timeParam(w, r, "to")
	if !ok {
		return
	}

	summaries, err := h.usage.UsageSummary(r.Context(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []models.UsageSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": summaries})
}

func timeParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid "+name+" time, want RFC 3339")
		return nil, false
	}
	return &t, true
}
