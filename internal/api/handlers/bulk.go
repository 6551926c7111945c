package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nikhilbhutani/pdfaccess/internal/auth"
	"github.com/nikhilbhutani/pdfaccess/internal/bulk"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
)

type BulkRunner interface {
	Run(ctx context.Context, req bulk.Request) (*models.BulkJob, error)
}

type BulkEnqueuer interface {
	EnqueueRemediationBulk(ctx context.Context, payload queue.RemediationBulkPayload) (string, error)
}

type BulkHandler struct {
	runner BulkRunner
	queue  BulkEnqueuer
}

func NewBulkHandler(runner BulkRunner, q BulkEnqueuer) *BulkHandler {
	return &BulkHandler{runner: runner, queue: q}
}

type bulkRequest struct {
	Filter    models.IssueFilter   `json:"filter"`
	Operation models.BulkOperation `json:"operation"`
}

// Run executes the bulk operation within the request and returns the job with
// per-item outcomes. Approvals are recorded under the caller's identity.
func (h *BulkHandler) Run(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	job, err := h.runner.Run(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *BulkHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeMessage(w, http.StatusServiceUnavailable, "task queue is not configured")
		return
	}
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	if req.Filter.IsEmpty() {
		writeError(w, r, bulk.ErrEmptyFilter)
		return
	}
	if !req.Operation.Valid() {
		writeError(w, r, bulk.ErrInvalidOperation)
		return
	}

	taskID, err := h.queue.EnqueueRemediationBulk(r.Context(), queue.RemediationBulkPayload{
		Filter:     req.Filter,
		Operation:  req.Operation,
		ApprovedBy: req.ApprovedBy,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "queued"})
}

func decodeBulk(w http.ResponseWriter, r *http.Request) (bulk.Request, bool) {
	var body bulkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return bulk.Request{}, false
	}
	req := bulk.Request{Filter: body.Filter, Operation: body.Operation}
	if c := auth.ClaimsFromContext(r.Context()); c != nil {
		req.ApprovedBy = c.Identity()
	}
	return req, true
}
