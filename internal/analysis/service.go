// Package analysis ties extraction, detection and scoring together for one
// document and assembles the export report.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/detector"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/scoring"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

// Extractor turns a stored document into content the detector understands.
type Extractor interface {
	Extract(ctx context.Context, doc *models.Document) (*models.DocumentContent, error)
}

// Stores groups the persistence the service needs. One implementation
// usually satisfies all of them.
type Stores struct {
	Documents store.DocumentStore
	Issues    store.IssueStore
	Records   store.RecordStore
	Contents  store.ContentStore
	Reports   store.ReportStore
}

type Service struct {
	stores    Stores
	extractor Extractor
	detector  *detector.Detector
	now       func() time.Time
}

func NewService(stores Stores, extractor Extractor, det *detector.Detector) *Service {
	if det == nil {
		det = detector.New()
	}
	return &Service{
		stores:    stores,
		extractor: extractor,
		detector:  det,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Analyze extracts the document and runs AnalyzeContent on the result. The
// document is marked failed if either step fails.
func (s *Service) Analyze(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error) {
	doc, err := s.stores.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if err := s.stores.Documents.UpdateStatus(ctx, documentID, models.DocStatusAnalyzing, 0); err != nil {
		return nil, fmt.Errorf("mark analyzing: %w", err)
	}

	start := time.Now()
	content, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		s.markFailed(ctx, documentID, err)
		return nil, fmt.Errorf("extract content: %w", err)
	}
	slog.Info("document extracted", "document_id", documentID, "pages", len(content.Pages), "took", time.Since(start))

	report, err := s.AnalyzeContent(ctx, documentID, content)
	if err != nil {
		s.markFailed(ctx, documentID, err)
		return nil, err
	}
	return report, nil
}

// AnalyzeContent detects issues in already extracted content, replaces the
// document's issue set and stores a fresh report snapshot. Records of issues
// that are no longer present are dropped.
func (s *Service) AnalyzeContent(ctx context.Context, documentID uuid.UUID, content *models.DocumentContent) (*models.ScoreReport, error) {
	issues := s.detector.Detect(documentID, content)

	if err := s.stores.Contents.SaveContent(ctx, documentID, content); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}
	if err := s.stores.Issues.ReplaceIssues(ctx, documentID, issues); err != nil {
		return nil, fmt.Errorf("replace issues: %w", err)
	}

	live := make([]uuid.UUID, len(issues))
	for i, is := range issues {
		live[i] = is.ID
	}
	if err := s.stores.Records.PruneRecords(ctx, documentID, live); err != nil {
		return nil, fmt.Errorf("prune remediation records: %w", err)
	}

	report := scoring.Report(documentID, issues, nil, s.now())
	if err := s.stores.Reports.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	pages := 0
	if content != nil {
		pages = len(content.Pages)
	}
	if err := s.stores.Documents.UpdateStatus(ctx, documentID, models.DocStatusCompleted, pages); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	slog.Info("document analyzed",
		"document_id", documentID,
		"issues", len(issues),
		"score", report.OverallScore,
		"level", report.ComplianceLevel,
	)
	return &report, nil
}

// Rescore recomputes the document's report with implemented issues excluded
// and stores it as the latest snapshot.
func (s *Service) Rescore(ctx context.Context, documentID uuid.UUID) error {
	report, err := s.Report(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.stores.Reports.SaveReport(ctx, *report); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	slog.Info("document rescored", "document_id", documentID, "score", report.OverallScore, "resolved", report.ResolvedIssues)
	return nil
}

// Report computes the current report without storing it.
func (s *Service) Report(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error) {
	issues, records, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	r := scoring.Report(documentID, issues, resolvedSet(records), s.now())
	return &r, nil
}

// Export builds the flat export report with each issue's remediation status.
func (s *Service) Export(ctx context.Context, documentID uuid.UUID) (*models.ExportReport, error) {
	issues, records, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	r := scoring.ScoreActive(issues, resolvedSet(records))

	out := &models.ExportReport{
		DocumentID:      documentID,
		OverallScore:    r.OverallScore,
		ComplianceLevel: r.ComplianceLevel,
		TotalIssues:     len(issues),
		CriticalIssues:  r.CriticalIssues,
		HighIssues:      r.HighIssues,
		MediumIssues:    r.MediumIssues,
		LowIssues:       r.LowIssues,
		Issues:          make([]models.ExportIssue, 0, len(issues)),
	}
	for _, is := range issues {
		status := models.RemediationPending
		if rec, ok := records[is.ID]; ok {
			status = rec.Status
		}
		out.Issues = append(out.Issues, models.ExportIssue{
			ID:                is.ID,
			Type:              is.Type,
			Severity:          is.Severity,
			PageNumber:        is.PageNumber,
			Description:       is.Description,
			WCAGCriteria:      is.WCAGCriteria,
			RemediationStatus: status,
		})
	}
	return out, nil
}

func (s *Service) Issues(ctx context.Context, documentID uuid.UUID) ([]models.Issue, error) {
	issues, err := s.stores.Issues.ListIssues(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

func (s *Service) load(ctx context.Context, documentID uuid.UUID) ([]models.Issue, map[uuid.UUID]*models.RemediationRecord, error) {
	issues, err := s.stores.Issues.ListIssues(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("list issues: %w", err)
	}
	recs, err := s.stores.Records.ListRecords(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("list remediation records: %w", err)
	}
	byIssue := make(map[uuid.UUID]*models.RemediationRecord, len(recs))
	for _, r := range recs {
		byIssue[r.IssueID] = r
	}
	return issues, byIssue, nil
}

func resolvedSet(records map[uuid.UUID]*models.RemediationRecord) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for id, r := range records {
		if r.Status == models.RemediationImplemented {
			out[id] = true
		}
	}
	return out
}

func (s *Service) markFailed(ctx context.Context, documentID uuid.UUID, cause error) {
	slog.Error("document analysis failed", "document_id", documentID, "error", cause)
	if err := s.stores.Documents.UpdateStatus(context.WithoutCancel(ctx), documentID, models.DocStatusFailed, 0); err != nil {
		slog.Error("mark document failed", "document_id", documentID, "error", err)
	}
}
