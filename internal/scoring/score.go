// Package scoring reduces an issue list to a 0-100 compliance score.
package scoring

import (
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

const maxScore = 100

// penalties per severity; anything unknown is scored as medium.
var penalties = map[models.Severity]int{
	models.SeverityCritical: 15,
	models.SeverityHigh:     8,
	models.SeverityMedium:   4,
	models.SeverityLow:      1,
}

func Penalty(s models.Severity) int {
	return penalties[s.Normalize()]
}

// Level maps a score to its compliance classification.
func Level(score int) models.ComplianceLevel {
	switch {
	case score >= 90:
		return models.ComplianceAAA
	case score >= 75:
		return models.ComplianceAA
	case score >= 50:
		return models.ComplianceA
	default:
		return models.ComplianceNonCompliant
	}
}

// Score computes the report for issues, treating all of them as active.
func Score(issues []models.Issue) models.ScoreReport {
	return ScoreActive(issues, nil)
}

// ScoreActive computes the report for issues, excluding the ones in resolved
// from the penalty sum and the counts. Resolved issues are reported in
// ResolvedIssues.
func ScoreActive(issues []models.Issue, resolved map[uuid.UUID]bool) models.ScoreReport {
	var r models.ScoreReport
	penalty := 0
	for _, is := range issues {
		if resolved[is.ID] {
			r.ResolvedIssues++
			continue
		}
		sev := is.Severity.Normalize()
		penalty += penalties[sev]
		r.TotalIssues++
		switch sev {
		case models.SeverityCritical:
			r.CriticalIssues++
		case models.SeverityHigh:
			r.HighIssues++
		case models.SeverityMedium:
			r.MediumIssues++
		case models.SeverityLow:
			r.LowIssues++
		}
	}

	r.OverallScore = max(0, maxScore-penalty)
	r.ComplianceLevel = Level(r.OverallScore)
	return r
}

// Report is ScoreActive stamped with the document and generation time.
func Report(documentID uuid.UUID, issues []models.Issue, resolved map[uuid.UUID]bool, now time.Time) models.ScoreReport {
	r := ScoreActive(issues, resolved)
	r.DocumentID = documentID
	r.GeneratedAt = now.UTC()
	return r
}
