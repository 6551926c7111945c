package queue

import (
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

const (
	TypeDocumentAnalyze = "document:analyze"
	TypeRemediationBulk = "remediation:bulk"
)

type DocumentAnalyzePayload struct {
	DocumentID string `json:"document_id"`
}

type RemediationBulkPayload struct {
	Filter     models.IssueFilter   `json:"filter"`
	Operation  models.BulkOperation `json:"operation"`
	ApprovedBy string               `json:"approved_by,omitempty"`
}
