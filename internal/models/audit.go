package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one persisted remediation transition.
type AuditEntry struct {
	ID         int64             `json:"id" db:"id"`
	IssueID    uuid.UUID         `json:"issue_id" db:"issue_id"`
	DocumentID uuid.UUID         `json:"document_id" db:"document_id"`
	Event      string            `json:"event" db:"event"`
	FromStatus RemediationStatus `json:"from_status" db:"from_status"`
	ToStatus   RemediationStatus `json:"to_status" db:"to_status"`
	Actor      string            `json:"actor,omitempty" db:"actor"`
	Detail     string            `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

type LLMUsageLog struct {
	ID           int64      `json:"id" db:"id"`
	IssueID      *uuid.UUID `json:"issue_id,omitempty" db:"issue_id"`
	IssueType    IssueType  `json:"issue_type,omitempty" db:"issue_type"`
	Provider     string     `json:"provider" db:"provider"`
	Model        string     `json:"model" db:"model"`
	InputTokens  int        `json:"input_tokens" db:"input_tokens"`
	OutputTokens int        `json:"output_tokens" db:"output_tokens"`
	TotalTokens  int        `json:"total_tokens" db:"total_tokens"`
	CostUSD      float64    `json:"cost_usd" db:"cost_usd"`
	LatencyMs    int64      `json:"latency_ms" db:"latency_ms"`
	Truncated    bool       `json:"truncated" db:"truncated"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// UsageSummary aggregates LLM usage per provider and model.
type UsageSummary struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	TotalCalls   int     `json:"total_calls"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}
