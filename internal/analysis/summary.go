package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

const MaxSummaryDocuments = 500

var (
	ErrNoDocuments      = errors.New("at least one document id is required")
	ErrTooManyDocuments = fmt.Errorf("at most %d document ids are allowed", MaxSummaryDocuments)
)

// Summary aggregates the latest stored reports of documentIDs. Documents
// without a report count toward TotalPDFs only. Severity counts cover every
// detected issue, resolved or not.
func (s *Service) Summary(ctx context.Context, documentIDs []uuid.UUID) (*models.AnalyticsSummary, error) {
	ids := dedupe(documentIDs)
	if len(ids) == 0 {
		return nil, ErrNoDocuments
	}
	if len(ids) > MaxSummaryDocuments {
		return nil, ErrTooManyDocuments
	}

	out := &models.AnalyticsSummary{
		TotalPDFs:              len(ids),
		ComplianceDistribution: map[models.ComplianceLevel]int{},
		SeverityDistribution: map[models.Severity]int{
			models.SeverityCritical: 0,
			models.SeverityHigh:     0,
			models.SeverityMedium:   0,
			models.SeverityLow:      0,
		},
	}

	scoreSum := 0
	for _, id := range ids {
		if _, err := s.stores.Documents.GetDocument(ctx, id); err != nil {
			return nil, fmt.Errorf("get document %s: %w", id, err)
		}
		report, err := s.stores.Reports.LatestReport(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest report %s: %w", id, err)
		}
		out.AnalyzedPDFs++
		scoreSum += report.OverallScore
		out.ComplianceDistribution[report.ComplianceLevel]++
	}
	if out.AnalyzedPDFs > 0 {
		avg := float64(scoreSum) / float64(out.AnalyzedPDFs)
		out.AverageScore = math.Round(avg*100) / 100
	}

	issues, err := s.stores.Issues.FindIssues(ctx, models.IssueFilter{DocumentIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	out.TotalIssues = len(issues)
	for _, is := range issues {
		out.SeverityDistribution[is.Severity]++
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
