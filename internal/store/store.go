// Package store declares the persistence contracts shared by the in-memory and
// PostgreSQL implementations.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a compare-and-swap saw a different version than expected.
	ErrConflict = errors.New("version conflict")
)

// IssueStore holds the current issue set per document. ReplaceIssues swaps the
// whole set atomically: readers see either the old set or the new one.
type IssueStore interface {
	ReplaceIssues(ctx context.Context, documentID uuid.UUID, issues []models.Issue) error
	ListIssues(ctx context.Context, documentID uuid.UUID) ([]models.Issue, error)
	GetIssue(ctx context.Context, issueID uuid.UUID) (*models.Issue, error)
	FindIssues(ctx context.Context, filter models.IssueFilter) ([]models.Issue, error)
}

// RecordStore holds remediation records keyed by issue id.
type RecordStore interface {
	GetRecord(ctx context.Context, issueID uuid.UUID) (*models.RemediationRecord, error)
	// CompareAndSwap stores rec if the stored version equals expected, where 0
	// means no record may exist yet. On success rec.Version becomes expected+1.
	CompareAndSwap(ctx context.Context, expected int64, rec *models.RemediationRecord) error
	ListRecords(ctx context.Context, documentID uuid.UUID) ([]*models.RemediationRecord, error)
	// PruneRecords drops a document's records whose issue id is not in live,
	// used after the document's issues were replaced.
	PruneRecords(ctx context.Context, documentID uuid.UUID, live []uuid.UUID) error
}

// ContentStore keeps the extracted content a document's issues were detected from.
type ContentStore interface {
	SaveContent(ctx context.Context, documentID uuid.UUID, content *models.DocumentContent) error
	GetContent(ctx context.Context, documentID uuid.UUID) (*models.DocumentContent, error)
}

type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount int) error
}

// ReportStore keeps score report snapshots for history.
type ReportStore interface {
	SaveReport(ctx context.Context, report models.ScoreReport) error
	LatestReport(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error)
}
