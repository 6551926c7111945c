package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/auth"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

type Remediator interface {
	Get(ctx context.Context, issue models.Issue) (*models.RemediationRecord, error)
	Generate(ctx context.Context, issue models.Issue, content *models.DocumentContent) (*models.RemediationRecord, error)
	Approve(ctx context.Context, issueID uuid.UUID, approver string) (*models.RemediationRecord, error)
	Reject(ctx context.Context, issueID uuid.UUID) (*models.RemediationRecord, error)
	Implement(ctx context.Context, issueID uuid.UUID, opts remediation.ImplementOptions) (*models.RemediationRecord, error)
	Fail(ctx context.Context, issueID uuid.UUID, kind remediation.ErrorKind, message string) (*models.RemediationRecord, error)
}

// TrailReader returns the recorded transitions of one issue.
type TrailReader interface {
	Trail(ctx context.Context, issueID uuid.UUID) ([]models.AuditEntry, error)
}

type IssueGetter interface {
	GetIssue(ctx context.Context, issueID uuid.UUID) (*models.Issue, error)
}

type RemediationHandler struct {
	machine  Remediator
	issues   IssueGetter
	contents store.ContentStore
	trail    TrailReader
}

func NewRemediationHandler(machine Remediator, issues IssueGetter, contents store.ContentStore, trail TrailReader) *RemediationHandler {
	return &RemediationHandler{machine: machine, issues: issues, contents: contents, trail: trail}
}

func (h *RemediationHandler) Get(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}
	rec, err := h.machine.Get(r.Context(), *issue)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Generate asks for remediation content. A document without stored content
// reaches the machine with nil content and fails as ContextUnavailable.
func (h *RemediationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}

	content, err := h.contents.GetContent(r.Context(), issue.DocumentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, r, err)
		return
	}

	rec, err := h.machine.Generate(r.Context(), *issue, content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RemediationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeMessage(w, http.StatusUnauthorized, "approval requires an authenticated caller")
		return
	}

	rec, err := h.machine.Approve(r.Context(), issue.ID, claims.Identity())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RemediationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}
	rec, err := h.machine.Reject(r.Context(), issue.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RemediationHandler) Implement(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}
	rec, err := h.machine.Implement(r.Context(), issue.ID, remediation.ImplementOptions{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type failRequest struct {
	Reason string `json:"reason"`
}

// Fail lets a reviewer mark generated content unusable. Only generated and
// implementation_pending records can fail; a record that was never approved
// can be regenerated afterwards.
func (h *RemediationHandler) Fail(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}
	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		writeMessage(w, http.StatusBadRequest, "reason is required")
		return
	}

	rec, err := h.machine.Fail(r.Context(), issue.ID, remediation.KindGenerationFailed, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RemediationHandler) History(w http.ResponseWriter, r *http.Request) {
	issue, ok := h.issue(w, r)
	if !ok {
		return
	}
	trail, err := h.trail.Trail(r.Context(), issue.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if trail == nil {
		trail = []models.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issue_id": issue.ID, "history": trail})
}

func (h *RemediationHandler) issue(w http.ResponseWriter, r *http.Request) (*models.Issue, bool) {
	id, ok := idParam(w, r, "issue")
	if !ok {
		return nil, false
	}
	issue, err := h.issues.GetIssue(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return issue, true
}
