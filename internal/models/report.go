package models

import (
	"time"

	"github.com/google/uuid"
)

type ComplianceLevel string

const (
	ComplianceAAA          ComplianceLevel = "AAA"
	ComplianceAA           ComplianceLevel = "AA"
	ComplianceA            ComplianceLevel = "A"
	ComplianceNonCompliant ComplianceLevel = "Non-compliant"
)

// ScoreReport is derived from the active issue set of a document. It is
// never mutated in place; recompute it instead.
type ScoreReport struct {
	DocumentID      uuid.UUID       `json:"document_id" db:"document_id"`
	OverallScore    int             `json:"overall_score" db:"overall_score"`
	ComplianceLevel ComplianceLevel `json:"wcag_compliance_level" db:"wcag_compliance_level"`
	TotalIssues     int             `json:"total_issues" db:"total_issues"`
	CriticalIssues  int             `json:"critical_issues" db:"critical_issues"`
	HighIssues      int             `json:"high_issues" db:"high_issues"`
	MediumIssues    int             `json:"medium_issues" db:"medium_issues"`
	LowIssues       int             `json:"low_issues" db:"low_issues"`
	ResolvedIssues  int             `json:"resolved_issues" db:"resolved_issues"`
	GeneratedAt     time.Time       `json:"generated_at" db:"generated_at"`
}

// ExportReport is the flat structure handed to reporting/export consumers.
type ExportReport struct {
	DocumentID      uuid.UUID       `json:"document_id"`
	OverallScore    int             `json:"overall_score"`
	ComplianceLevel ComplianceLevel `json:"wcag_compliance_level"`
	TotalIssues     int             `json:"total_issues"`
	CriticalIssues  int             `json:"critical_issues"`
	HighIssues      int             `json:"high_issues"`
	MediumIssues    int             `json:"medium_issues"`
	LowIssues       int             `json:"low_issues"`
	Issues          []ExportIssue   `json:"issues"`
}

type ExportIssue struct {
	ID                uuid.UUID         `json:"id"`
	Type              IssueType         `json:"type"`
	Severity          Severity          `json:"severity"`
	PageNumber        *int              `json:"page_number"`
	Description       string            `json:"description"`
	WCAGCriteria      string            `json:"wcag_criteria"`
	RemediationStatus RemediationStatus `json:"remediation_status"`
}

// AnalyticsSummary aggregates the latest reports of a set of documents.
type AnalyticsSummary struct {
	TotalPDFs              int                     `json:"total_pdfs"`
	AnalyzedPDFs           int                     `json:"analyzed_pdfs"`
	TotalIssues            int                     `json:"total_issues"`
	AverageScore           float64                 `json:"average_score"`
	ComplianceDistribution map[ComplianceLevel]int `json:"compliance_distribution"`
	SeverityDistribution   map[Severity]int        `json:"severity_distribution"`
}
