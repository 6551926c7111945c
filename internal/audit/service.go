package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

var _ Logger = (*Service)(nil)

func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_logs (issue_id, document_id, event, from_status, to_status, actor, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.IssueID, entry.DocumentID, entry.Event, string(entry.From), string(entry.To), entry.Actor, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Trail returns the issue's transitions oldest first.
func (s *Service) Trail(ctx context.Context, issueID uuid.UUID) ([]models.AuditEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, issue_id, document_id, event, from_status, to_status, actor, detail, created_at
		 FROM audit_logs WHERE issue_id = $1 ORDER BY id`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var trail []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var from, to string
		if err := rows.Scan(&e.ID, &e.IssueID, &e.DocumentID, &e.Event, &from, &to, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.FromStatus = models.RemediationStatus(from)
		e.ToStatus = models.RemediationStatus(to)
		trail = append(trail, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit logs: %w", err)
	}
	return trail, nil
}

func (s *Service) LogLLMUsage(ctx context.Context, record models.LLMUsageLog) error {
	total := record.TotalTokens
	if total == 0 {
		total = record.InputTokens + record.OutputTokens
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO llm_usage_logs (issue_id, issue_type, provider, model, input_tokens, output_tokens, total_tokens, cost_usd, latency_ms, truncated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.IssueID, string(record.IssueType), record.Provider, record.Model, record.InputTokens,
		record.OutputTokens, total, record.CostUSD, record.LatencyMs, record.Truncated,
	)
	if err != nil {
		return fmt.Errorf("insert LLM usage log: %w", err)
	}
	return nil
}

func (s *Service) UsageSummary(ctx context.Context, startDate, endDate *time.Time) ([]models.UsageSummary, error) {
	query, args := usageSummaryQuery(startDate, endDate)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var us models.UsageSummary
		if err := rows.Scan(&us.Provider, &us.Model, &us.TotalCalls, &us.TotalTokens, &us.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("scan usage summary: %w", err)
		}
		summaries = append(summaries, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read usage summary: %w", err)
	}
	return summaries, nil
}

func usageSummaryQuery(startDate, endDate *time.Time) (string, []any) {
	query := `SELECT provider, model, COUNT(*) AS total_calls,
		COALESCE(SUM(total_tokens), 0) AS total_tokens,
		COALESCE(SUM(cost_usd), 0)::float8 AS total_cost_usd
		FROM llm_usage_logs`
	var where []string
	var args []any
	if startDate != nil {
		args = append(args, *startDate)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if endDate != nil {
		args = append(args, *endDate)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " GROUP BY provider, model ORDER BY total_cost_usd DESC"
	return query, args
}
