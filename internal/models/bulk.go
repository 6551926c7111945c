package models

import (
	"time"

	"github.com/google/uuid"
)

type BulkOperation string

const (
	BulkGenerate  BulkOperation = "generate"
	BulkApprove   BulkOperation = "approve"
	BulkImplement BulkOperation = "implement"
)

func (o BulkOperation) Valid() bool {
	switch o {
	case BulkGenerate, BulkApprove, BulkImplement:
		return true
	}
	return false
}

type BulkOutcome string

const (
	OutcomeSuccess BulkOutcome = "success"
	OutcomeFailed  BulkOutcome = "failed"
	OutcomeSkipped BulkOutcome = "skipped"
)

type BulkItem struct {
	IssueID    uuid.UUID   `json:"issue_id"`
	DocumentID uuid.UUID   `json:"document_id"`
	Outcome    BulkOutcome `json:"outcome"`
	Reason     string      `json:"reason,omitempty"`
}

// BulkJob tracks one bulk operation for its duration only.
type BulkJob struct {
	ID         uuid.UUID     `json:"id"`
	Filter     IssueFilter   `json:"filter"`
	Operation  BulkOperation `json:"operation"`
	Items      []BulkItem    `json:"items"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Cancelled  bool          `json:"cancelled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Tally recomputes the aggregate counts from Items.
func (j *BulkJob) Tally() {
	j.Succeeded, j.Failed, j.Skipped = 0, 0, 0
	for _, it := range j.Items {
		switch it.Outcome {
		case OutcomeSuccess:
			j.Succeeded++
		case OutcomeFailed:
			j.Failed++
		case OutcomeSkipped:
			j.Skipped++
		}
	}
}
