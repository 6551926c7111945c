// Package bulk applies one remediation operation to every issue matching a
// filter, collecting a per-item outcome instead of stopping on the first error.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/pdfaccess/internal/audit"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/remediation"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

var (
	// ErrEmptyFilter guards against sweeping every issue in the database.
	ErrEmptyFilter      = errors.New("bulk filter selects everything; narrow it by document, type or severity")
	ErrInvalidOperation = errors.New("unknown bulk operation")
	ErrMissingApprover  = errors.New("bulk approve requires an approver")
)

// Remediator is the subset of remediation.Machine the orchestrator drives.
type Remediator interface {
	Generate(ctx context.Context, issue models.Issue, content *models.DocumentContent) (*models.RemediationRecord, error)
	Approve(ctx context.Context, issueID uuid.UUID, approver string) (*models.RemediationRecord, error)
	Implement(ctx context.Context, issueID uuid.UUID, opts remediation.ImplementOptions) (*models.RemediationRecord, error)
}

type IssueFinder interface {
	FindIssues(ctx context.Context, filter models.IssueFilter) ([]models.Issue, error)
}

type Config struct {
	Concurrency int
}

type Request struct {
	Filter     models.IssueFilter   `json:"filter"`
	Operation  models.BulkOperation `json:"operation"`
	ApprovedBy string               `json:"approved_by,omitempty"`
}

type Orchestrator struct {
	issues   IssueFinder
	contents store.ContentStore
	machine  Remediator
	rescorer remediation.Rescorer
	cfg      Config
	now      func() time.Time
}

func NewOrchestrator(issues IssueFinder, contents store.ContentStore, machine Remediator, rescorer remediation.Rescorer, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Orchestrator{
		issues:   issues,
		contents: contents,
		machine:  machine,
		rescorer: rescorer,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes req and returns the finished job. Item failures are recorded
// on the job; only setup problems are returned as errors. When ctx is
// cancelled, items not yet started are marked skipped and the job is
// returned with Cancelled set.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.BulkJob, error) {
	if req.Filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}
	if !req.Operation.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, req.Operation)
	}
	if req.Operation == models.BulkApprove && req.ApprovedBy == "" {
		return nil, ErrMissingApprover
	}
	// Queued jobs carry the requester only in the payload.
	if audit.ActorFrom(ctx) == "" {
		ctx = audit.WithActor(ctx, req.ApprovedBy)
	}

	issues, err := o.issues.FindIssues(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("resolve bulk filter: %w", err)
	}

	job := &models.BulkJob{
		ID:        uuid.New(),
		Filter:    req.Filter,
		Operation: req.Operation,
		Items:     make([]models.BulkItem, len(issues)),
		StartedAt: o.now(),
	}
	slog.Info("bulk job started", "job_id", job.ID, "operation", req.Operation, "issues", len(issues))

	contents := newContentCache(o.contents)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, is := range issues {
		job.Items[i] = models.BulkItem{IssueID: is.ID, DocumentID: is.DocumentID}
		if ctx.Err() != nil {
			job.Items[i].Outcome = models.OutcomeSkipped
			job.Items[i].Reason = "cancelled"
			continue
		}
		g.Go(func() error {
			job.Items[i].Outcome, job.Items[i].Reason = o.runItem(ctx, req, is, contents)
			return nil
		})
	}
	_ = g.Wait()

	if req.Operation == models.BulkImplement {
		o.rescoreTouched(context.WithoutCancel(ctx), job)
	}

	job.Cancelled = ctx.Err() != nil
	job.FinishedAt = o.now()
	job.Tally()
	slog.Info("bulk job finished",
		"job_id", job.ID,
		"succeeded", job.Succeeded,
		"failed", job.Failed,
		"skipped", job.Skipped,
		"cancelled", job.Cancelled,
	)
	return job, nil
}

func (o *Orchestrator) runItem(ctx context.Context, req Request, is models.Issue, contents *contentCache) (models.BulkOutcome, string) {
	// Items queued behind the limit may start after cancellation.
	if ctx.Err() != nil {
		return models.OutcomeSkipped, "cancelled"
	}

	var err error
	switch req.Operation {
	case models.BulkGenerate:
		var content *models.DocumentContent
		content, err = contents.get(ctx, is.DocumentID)
		if err == nil {
			_, err = o.machine.Generate(ctx, is, content)
		}
	case models.BulkApprove:
		_, err = o.machine.Approve(ctx, is.ID, req.ApprovedBy)
	case models.BulkImplement:
		_, err = o.machine.Implement(ctx, is.ID, remediation.ImplementOptions{DeferRescore: true})
	}
	return outcomeOf(ctx, err)
}

func outcomeOf(ctx context.Context, err error) (models.BulkOutcome, string) {
	switch {
	case err == nil:
		return models.OutcomeSuccess, ""
	case remediation.IsKind(err, remediation.KindInvalidTransition):
		return models.OutcomeSkipped, err.Error()
	case errors.Is(err, remediation.ErrOperationInProgress):
		return models.OutcomeSkipped, "operation already in progress"
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return models.OutcomeSkipped, "cancelled"
	default:
		return models.OutcomeFailed, err.Error()
	}
}

// rescoreTouched rescores each document that had at least one issue
// implemented, once.
func (o *Orchestrator) rescoreTouched(ctx context.Context, job *models.BulkJob) {
	if o.rescorer == nil {
		return
	}
	seen := make(map[uuid.UUID]bool)
	for _, it := range job.Items {
		if it.Outcome != models.OutcomeSuccess || seen[it.DocumentID] {
			continue
		}
		seen[it.DocumentID] = true
		if err := o.rescorer.Rescore(ctx, it.DocumentID); err != nil {
			slog.Error("bulk rescore failed", "job_id", job.ID, "document_id", it.DocumentID, "error", err)
		}
	}
}

// contentCache loads each document's extracted content at most once per job.
type contentCache struct {
	store store.ContentStore
	mu    sync.Mutex
	byDoc map[uuid.UUID]*contentEntry
}

type contentEntry struct {
	once    sync.Once
	content *models.DocumentContent
	err     error
}

func newContentCache(s store.ContentStore) *contentCache {
	return &contentCache{store: s, byDoc: make(map[uuid.UUID]*contentEntry)}
}

func (c *contentCache) get(ctx context.Context, documentID uuid.UUID) (*models.DocumentContent, error) {
	c.mu.Lock()
	e, ok := c.byDoc[documentID]
	if !ok {
		e = &contentEntry{}
		c.byDoc[documentID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.content, e.err = c.store.GetContent(ctx, documentID)
		if errors.Is(e.err, store.ErrNotFound) {
			// Generate turns missing content into ContextUnavailable per item.
			e.content, e.err = nil, nil
		}
		if e.err != nil {
			e.err = fmt.Errorf("load content for document %s: %w", documentID, e.err)
		}
	})
	return e.content, e.err
}
