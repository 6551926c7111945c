// Package remediation builds generation requests for detected issues and moves
// each issue's remediation record through its review workflow.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/audit"
	"github.com/nikhilbhutani/pdfaccess/internal/lock"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

const maxCASRetries = 8

// Generator produces remediation content for one request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type RewriteRequest struct {
	DocumentID         uuid.UUID `json:"document_id"`
	IssueID            uuid.UUID `json:"issue_id"`
	RemediationContent string    `json:"remediation_content"`
}

type RewriteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Rewriter applies approved content to the stored document.
type Rewriter interface {
	Apply(ctx context.Context, req RewriteRequest) (RewriteResult, error)
}

// Rescorer recomputes a document's report after one of its issues is resolved.
type Rescorer interface {
	Rescore(ctx context.Context, documentID uuid.UUID) error
}

// Auditor records every committed transition.
type Auditor interface {
	Log(ctx context.Context, entry audit.LogEntry) error
}

type Config struct {
	GenerateTimeout  time.Duration
	ImplementTimeout time.Duration
	// ClaimTTL bounds how long a crashed caller can block an issue.
	ClaimTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		GenerateTimeout:  60 * time.Second,
		ImplementTimeout: 120 * time.Second,
		ClaimTTL:         5 * time.Minute,
	}
}

type ImplementOptions struct {
	// DeferRescore skips the per-issue rescore; the caller rescores the
	// document once when its batch is done.
	DeferRescore bool
}

type Machine struct {
	records   store.RecordStore
	claims    lock.Claimer
	generator Generator
	rewriter  Rewriter
	rescorer  Rescorer
	auditor   Auditor
	cfg       Config
	now       func() time.Time
}

func NewMachine(records store.RecordStore, claims lock.Claimer, generator Generator, rewriter Rewriter, rescorer Rescorer, cfg Config) *Machine {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultConfig().ClaimTTL
	}
	return &Machine{
		records:   records,
		claims:    claims,
		generator: generator,
		rewriter:  rewriter,
		rescorer:  rescorer,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithAuditor makes the machine log each committed transition to a.
func (m *Machine) WithAuditor(a Auditor) *Machine {
	m.auditor = a
	return m
}

// Get returns the issue's record, or a pending view when none exists yet.
func (m *Machine) Get(ctx context.Context, issue models.Issue) (*models.RemediationRecord, error) {
	rec, err := m.load(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &models.RemediationRecord{
			IssueID:    issue.ID,
			DocumentID: issue.DocumentID,
			Status:     models.RemediationPending,
		}, nil
	}
	return rec, nil
}

// Generate requests content for issue and stores it as a generated record.
func (m *Machine) Generate(ctx context.Context, issue models.Issue, content *models.DocumentContent) (*models.RemediationRecord, error) {
	rec, err := m.load(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	if _, err := Next(withIssue(rec, issue.ID), EventGenerate); err != nil {
		return nil, err
	}

	req, err := BuildRequest(issue, content)
	if err != nil {
		m.noteError(ctx, issue.ID, rec, KindContextUnavailable, err)
		return nil, err
	}

	release, err := m.claim(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	defer m.release(release, issue.ID)

	// Another caller may have finished a generate between the check and the claim.
	if rec, err = m.load(ctx, issue.ID); err != nil {
		return nil, err
	}
	if _, err := Next(withIssue(rec, issue.ID), EventGenerate); err != nil {
		return nil, err
	}

	genCtx, cancel := withTimeout(ctx, m.cfg.GenerateTimeout)
	resp, err := m.generator.Generate(genCtx, req)
	cancel()
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyContent
	}
	if err != nil {
		kind := classify(err, KindGenerationFailed)
		rerr := &Error{Kind: kind, Op: "generate", IssueID: issue.ID, Err: err}
		current, lerr := m.load(context.WithoutCancel(ctx), issue.ID)
		if lerr == nil {
			m.noteError(ctx, issue.ID, current, kind, err)
		}
		slog.Warn("remediation generation failed", "issue_id", issue.ID, "kind", kind, "error", err)
		return nil, rerr
	}

	generated := resp.Content
	return m.apply(context.WithoutCancel(ctx), issue.ID, issue.DocumentID, EventGenerate, func(r *models.RemediationRecord) bool {
		r.GeneratedContent = &generated
		r.AttemptCount++
		r.ApprovedBy = nil
		r.ApprovedAt = nil
		r.LastError = nil
		return true
	})
}

// Approve marks generated content as approved by approver. Approving an
// already approved record returns it unchanged.
func (m *Machine) Approve(ctx context.Context, issueID uuid.UUID, approver string) (*models.RemediationRecord, error) {
	ctx = audit.WithActor(ctx, approver)
	return m.apply(ctx, issueID, uuid.Nil, EventApprove, func(r *models.RemediationRecord) bool {
		if r.ApprovedAt != nil && r.Status == models.RemediationApproved {
			return false
		}
		at := m.now()
		r.ApprovedBy = &approver
		r.ApprovedAt = &at
		return true
	})
}

func (m *Machine) Reject(ctx context.Context, issueID uuid.UUID) (*models.RemediationRecord, error) {
	return m.apply(ctx, issueID, uuid.Nil, EventReject, func(r *models.RemediationRecord) bool {
		r.ApprovedBy = nil
		r.ApprovedAt = nil
		return true
	})
}

// Fail moves a generated or implementation_pending record to failed.
func (m *Machine) Fail(ctx context.Context, issueID uuid.UUID, kind ErrorKind, message string) (*models.RemediationRecord, error) {
	return m.apply(ctx, issueID, uuid.Nil, EventFail, func(r *models.RemediationRecord) bool {
		r.LastError = &models.RemediationError{Kind: string(kind), Message: message, At: m.now()}
		return true
	})
}

// Implement sends approved content to the rewriter. A timeout or cancellation
// puts the record back where it was with a Timeout error noted.
func (m *Machine) Implement(ctx context.Context, issueID uuid.UUID, opts ImplementOptions) (*models.RemediationRecord, error) {
	release, err := m.claim(ctx, issueID)
	if err != nil {
		return nil, err
	}
	defer m.release(release, issueID)

	var prior models.RemediationStatus
	rec, err := m.apply(ctx, issueID, uuid.Nil, EventImplement, func(r *models.RemediationRecord) bool {
		prior = r.Status
		return true
	})
	if err != nil {
		return nil, err
	}

	// The record is now implementation_pending; every later write must happen
	// even if the caller has gone away.
	bg := context.WithoutCancel(ctx)

	if rec.GeneratedContent == nil {
		cause := errors.New("record has no generated content")
		m.failImplementation(bg, issueID, KindImplementationFailed, cause)
		return nil, &Error{Kind: KindImplementationFailed, Op: "implement", IssueID: issueID, Err: cause}
	}

	rwCtx, cancel := withTimeout(ctx, m.cfg.ImplementTimeout)
	result, err := m.rewriter.Apply(rwCtx, RewriteRequest{
		DocumentID:         rec.DocumentID,
		IssueID:            issueID,
		RemediationContent: *rec.GeneratedContent,
	})
	timedOut := rwCtx.Err() != nil
	cancel()

	if err != nil && (timedOut || classify(err, KindImplementationFailed) == KindTimeout) {
		m.revert(bg, issueID, prior, err)
		return nil, &Error{Kind: KindTimeout, Op: "implement", IssueID: issueID, Err: err}
	}
	if err == nil && !result.Success {
		err = fmt.Errorf("rewrite rejected: %s", result.Error)
	}
	if err != nil {
		m.failImplementation(bg, issueID, KindImplementationFailed, err)
		return nil, &Error{Kind: KindImplementationFailed, Op: "implement", IssueID: issueID, Err: err}
	}

	done, err := m.apply(bg, issueID, uuid.Nil, EventComplete, func(r *models.RemediationRecord) bool {
		at := m.now()
		r.ImplementedAt = &at
		r.LastError = nil
		return true
	})
	if err != nil {
		return nil, err
	}

	if !opts.DeferRescore && m.rescorer != nil {
		if err := m.rescorer.Rescore(bg, done.DocumentID); err != nil {
			slog.Error("rescore after implement failed", "document_id", done.DocumentID, "issue_id", issueID, "error", err)
		}
	}
	return done, nil
}

// apply runs one table transition as a compare-and-swap, retrying on version
// conflicts. mutate edits a copy of the record; returning false skips the write.
func (m *Machine) apply(ctx context.Context, issueID, documentID uuid.UUID, ev Event, mutate func(*models.RemediationRecord) bool) (*models.RemediationRecord, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := m.load(ctx, issueID)
		if err != nil {
			return nil, err
		}
		to, err := Next(withIssue(cur, issueID), ev)
		if err != nil {
			return nil, err
		}

		var next *models.RemediationRecord
		var expected int64
		if cur == nil {
			next = &models.RemediationRecord{IssueID: issueID, DocumentID: documentID}
		} else {
			next = cur.Clone()
			expected = cur.Version
		}
		from := statusOf(cur)

		if !mutate(next) {
			return cur, nil
		}
		next.Status = to
		next.UpdatedAt = m.now()

		err = m.records.CompareAndSwap(ctx, expected, next)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save remediation record: %w", err)
		}

		slog.Info("remediation transition", "issue_id", issueID, "event", ev, "from", from, "to", to, "version", next.Version)
		m.logTransition(ctx, string(ev), from, next)
		return next.Clone(), nil
	}
	return nil, fmt.Errorf("save remediation record %s: %w", issueID, store.ErrConflict)
}

// noteError records a failure on an existing record without moving it.
// Absent records stay absent.
func (m *Machine) noteError(ctx context.Context, issueID uuid.UUID, rec *models.RemediationRecord, kind ErrorKind, cause error) {
	ctx = context.WithoutCancel(ctx)
	for attempt := 0; attempt < maxCASRetries && rec != nil; attempt++ {
		next := rec.Clone()
		next.LastError = &models.RemediationError{Kind: string(kind), Message: cause.Error(), At: m.now()}
		next.UpdatedAt = m.now()
		err := m.records.CompareAndSwap(ctx, rec.Version, next)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			slog.Error("record remediation error", "issue_id", issueID, "error", err)
			return
		}
		if rec, err = m.load(ctx, issueID); err != nil {
			return
		}
	}
}

func (m *Machine) failImplementation(ctx context.Context, issueID uuid.UUID, kind ErrorKind, cause error) {
	_, err := m.apply(ctx, issueID, uuid.Nil, EventFail, func(r *models.RemediationRecord) bool {
		r.LastError = &models.RemediationError{Kind: string(kind), Message: cause.Error(), At: m.now()}
		return true
	})
	if err != nil {
		slog.Error("mark implementation failed", "issue_id", issueID, "error", err)
	}
	slog.Warn("remediation implementation failed", "issue_id", issueID, "error", cause)
}

// revert undoes implement -> implementation_pending after a timeout. It is
// not a table transition; it restores the exact prior state.
func (m *Machine) revert(ctx context.Context, issueID uuid.UUID, prior models.RemediationStatus, cause error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := m.load(ctx, issueID)
		if err != nil || cur == nil || cur.Status != models.RemediationImplementationPending {
			return
		}
		next := cur.Clone()
		next.Status = prior
		next.LastError = &models.RemediationError{Kind: string(KindTimeout), Message: cause.Error(), At: m.now()}
		next.UpdatedAt = m.now()
		err = m.records.CompareAndSwap(ctx, cur.Version, next)
		if err == nil {
			slog.Warn("remediation implement timed out, reverted", "issue_id", issueID, "status", prior)
			m.logTransition(ctx, "revert", cur.Status, next)
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			slog.Error("revert remediation record", "issue_id", issueID, "error", err)
			return
		}
	}
}

// logTransition logs a committed write. A failed audit write never undoes the transition.
func (m *Machine) logTransition(ctx context.Context, event string, from models.RemediationStatus, rec *models.RemediationRecord) {
	if m.auditor == nil {
		return
	}
	entry := audit.LogEntry{
		IssueID:    rec.IssueID,
		DocumentID: rec.DocumentID,
		Event:      event,
		From:       from,
		To:         rec.Status,
		Actor:      audit.ActorFrom(ctx),
	}
	if rec.LastError != nil && (rec.Status == models.RemediationFailed || event == "revert") {
		entry.Detail = rec.LastError.Message
	}
	if err := m.auditor.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("write remediation audit log", "issue_id", rec.IssueID, "event", event, "error", err)
	}
}

func (m *Machine) load(ctx context.Context, issueID uuid.UUID) (*models.RemediationRecord, error) {
	rec, err := m.records.GetRecord(ctx, issueID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load remediation record: %w", err)
	}
	return rec, nil
}

func (m *Machine) claim(ctx context.Context, issueID uuid.UUID) (lock.Release, error) {
	release, err := m.claims.Acquire(ctx, "remediation:"+issueID.String(), m.cfg.ClaimTTL)
	if errors.Is(err, lock.ErrHeld) {
		return nil, fmt.Errorf("issue %s: %w", issueID, ErrOperationInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("claim issue %s: %w", issueID, err)
	}
	return release, nil
}

func (m *Machine) release(release lock.Release, issueID uuid.UUID) {
	if err := release(context.Background()); err != nil {
		slog.Warn("release remediation claim", "issue_id", issueID, "error", err)
	}
}

// withIssue lets transition errors on absent records still name the issue.
func withIssue(rec *models.RemediationRecord, issueID uuid.UUID) *models.RemediationRecord {
	if rec != nil {
		return rec
	}
	return &models.RemediationRecord{IssueID: issueID, Status: models.RemediationPending}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
