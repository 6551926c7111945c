package models

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Normalize maps anything outside the four known severities to medium.
func (s Severity) Normalize() Severity {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return s
	default:
		return SeverityMedium
	}
}

// Issue is one detected defect. Issues are immutable; re-running detection
// replaces the whole set for a document.
type Issue struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DocumentID   uuid.UUID `json:"document_id" db:"document_id"`
	Type         IssueType `json:"issue_type" db:"issue_type"`
	Severity     Severity  `json:"severity" db:"severity"`
	PageNumber   *int      `json:"page_number" db:"page_number"` // nil for document-level issues
	Description  string    `json:"description" db:"description"`
	WCAGCriteria string    `json:"wcag_criteria" db:"wcag_criteria"`
	Location     Location  `json:"location" db:"location"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Location points at the element an issue was raised for.
type Location struct {
	Page         *int   `json:"page,omitempty"`
	Element      string `json:"element,omitempty"` // table, image, heading, field, link, document
	ElementIndex int    `json:"element_index"`
	Bounds       string `json:"bounds,omitempty"`
}

// Page returns the 1-indexed page number, or 0 for document-level issues.
func (i Issue) Page() int {
	if i.PageNumber == nil {
		return 0
	}
	return *i.PageNumber
}

// IssueFilter selects issues across documents. Empty slices match everything.
type IssueFilter struct {
	DocumentIDs []uuid.UUID `json:"document_ids,omitempty"`
	IssueTypes  []IssueType `json:"issue_types,omitempty"`
	Severities  []Severity  `json:"severities,omitempty"`
}

func (f IssueFilter) IsEmpty() bool {
	return len(f.DocumentIDs) == 0 && len(f.IssueTypes) == 0 && len(f.Severities) == 0
}

func (f IssueFilter) Matches(i Issue) bool {
	if len(f.DocumentIDs) > 0 && !containsID(f.DocumentIDs, i.DocumentID) {
		return false
	}
	if len(f.IssueTypes) > 0 && !contains(f.IssueTypes, i.Type) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, i.Severity) {
		return false
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
