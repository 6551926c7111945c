package models

import (
	"time"

	"github.com/google/uuid"
)

type RemediationStatus string

const (
	RemediationPending               RemediationStatus = "pending"
	RemediationGenerated             RemediationStatus = "generated"
	RemediationApproved              RemediationStatus = "approved"
	RemediationRejected              RemediationStatus = "rejected"
	RemediationImplementationPending RemediationStatus = "implementation_pending"
	RemediationImplemented           RemediationStatus = "implemented"
	RemediationFailed                RemediationStatus = "failed"
)

// RemediationError is the last recorded failure on a record.
type RemediationError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// RemediationRecord is the mutable remediation state of one issue. Version is
// bumped on every write and used for compare-and-swap.
type RemediationRecord struct {
	IssueID          uuid.UUID         `json:"issue_id" db:"issue_id"`
	DocumentID       uuid.UUID         `json:"document_id" db:"document_id"`
	Status           RemediationStatus `json:"status" db:"status"`
	GeneratedContent *string           `json:"generated_content,omitempty" db:"generated_content"`
	ApprovedBy       *string           `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty" db:"approved_at"`
	ImplementedAt    *time.Time        `json:"implemented_at,omitempty" db:"implemented_at"`
	AttemptCount     int               `json:"attempt_count" db:"attempt_count"`
	LastError        *RemediationError `json:"last_error,omitempty" db:"last_error"`
	Version          int64             `json:"version" db:"version"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (r *RemediationRecord) Clone() *RemediationRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.GeneratedContent != nil {
		v := *r.GeneratedContent
		c.GeneratedContent = &v
	}
	if r.ApprovedBy != nil {
		v := *r.ApprovedBy
		c.ApprovedBy = &v
	}
	if r.ApprovedAt != nil {
		v := *r.ApprovedAt
		c.ApprovedAt = &v
	}
	if r.ImplementedAt != nil {
		v := *r.ImplementedAt
		c.ImplementedAt = &v
	}
	if r.LastError != nil {
		v := *r.LastError
		c.LastError = &v
	}
	return &c
}
