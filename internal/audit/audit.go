// Package audit persists the remediation trail and LLM usage.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

type LogEntry struct {
	IssueID    uuid.UUID
	DocumentID uuid.UUID
	Event      string
	From       models.RemediationStatus
	To         models.RemediationStatus
	Actor      string
	Detail     string
}

// Logger is implemented by Service and Memory.
type Logger interface {
	Log(ctx context.Context, entry LogEntry) error
	Trail(ctx context.Context, issueID uuid.UUID) ([]models.AuditEntry, error)
	LogLLMUsage(ctx context.Context, record models.LLMUsageLog) error
	UsageSummary(ctx context.Context, startDate, endDate *time.Time) ([]models.UsageSummary, error)
}

type actorKey struct{}

// WithActor tags ctx with the user responsible for the transitions made under it.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
