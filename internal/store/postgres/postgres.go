// Package postgres implements the store contracts on PostgreSQL with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var (
	_ store.IssueStore    = (*Store)(nil)
	_ store.RecordStore   = (*Store)(nil)
	_ store.ContentStore  = (*Store)(nil)
	_ store.DocumentStore = (*Store)(nil)
	_ store.ReportStore   = (*Store)(nil)
)

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const issueColumns = `id, document_id, issue_type, severity, page_number, description, wcag_criteria, location, created_at`

// ReplaceIssues swaps a document's issue set inside one transaction so readers
// never observe a partial set.
func (s *Store) ReplaceIssues(ctx context.Context, documentID uuid.UUID, issues []models.Issue) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM issues WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("delete issues: %w", err)
	}

	if len(issues) > 0 {
		batch := &pgx.Batch{}
		for i, is := range issues {
			loc, err := json.Marshal(is.Location)
			if err != nil {
				return fmt.Errorf("marshal location: %w", err)
			}
			createdAt := is.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			batch.Queue(
				`INSERT INTO issues (id, document_id, issue_type, severity, page_number, description, wcag_criteria, location, position, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				is.ID, documentID, string(is.Type), string(is.Severity), is.PageNumber,
				is.Description, is.WCAGCriteria, loc, i, createdAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert issues: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ListIssues(ctx context.Context, documentID uuid.UUID) ([]models.Issue, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE document_id = $1 ORDER BY position`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return collectIssues(rows)
}

func (s *Store) GetIssue(ctx context.Context, issueID uuid.UUID) (*models.Issue, error) {
	rows, err := s.db.Query(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = $1`, issueID)
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	issues, err := collectIssues(rows)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, store.ErrNotFound
	}
	return &issues[0], nil
}

func (s *Store) FindIssues(ctx context.Context, filter models.IssueFilter) ([]models.Issue, error) {
	query, args := findIssuesQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find issues: %w", err)
	}
	return collectIssues(rows)
}

// findIssuesQuery adds one ANY clause per non-empty filter dimension.
func findIssuesQuery(filter models.IssueFilter) (string, []any) {
	var where []string
	var args []any

	if len(filter.DocumentIDs) > 0 {
		args = append(args, filter.DocumentIDs)
		where = append(where, fmt.Sprintf("document_id = ANY($%d)", len(args)))
	}
	if len(filter.IssueTypes) > 0 {
		types := make([]string, len(filter.IssueTypes))
		for i, t := range filter.IssueTypes {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("issue_type = ANY($%d)", len(args)))
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, sv := range filter.Severities {
			sevs[i] = string(sv)
		}
		args = append(args, sevs)
		where = append(where, fmt.Sprintf("severity = ANY($%d)", len(args)))
	}

	q := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY document_id, position`
	return q, args
}

func collectIssues(rows pgx.Rows) ([]models.Issue, error) {
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		var (
			is       models.Issue
			typ, sev string
			loc      []byte
		)
		if err := rows.Scan(&is.ID, &is.DocumentID, &typ, &sev, &is.PageNumber,
			&is.Description, &is.WCAGCriteria, &loc, &is.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		is.Type = models.IssueType(typ)
		is.Severity = models.Severity(sev)
		if len(loc) > 0 {
			if err := json.Unmarshal(loc, &is.Location); err != nil {
				return nil, fmt.Errorf("decode location for issue %s: %w", is.ID, err)
			}
		}
		issues = append(issues, is)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}
	return issues, nil
}

const recordColumns = `issue_id, document_id, status, generated_content, approved_by, approved_at, implemented_at, attempt_count, last_error, version, updated_at`

func (s *Store) GetRecord(ctx context.Context, issueID uuid.UUID) (*models.RemediationRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordColumns+` FROM remediation_records WHERE issue_id = $1`, issueID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// CompareAndSwap inserts when expected is 0 and otherwise updates only the row
// still at the expected version. A lost race reports store.ErrConflict.
func (s *Store) CompareAndSwap(ctx context.Context, expected int64, rec *models.RemediationRecord) error {
	var lastErr []byte
	if rec.LastError != nil {
		b, err := json.Marshal(rec.LastError)
		if err != nil {
			return fmt.Errorf("marshal last error: %w", err)
		}
		lastErr = b
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	next := expected + 1

	var query string
	args := []any{
		rec.IssueID, rec.DocumentID, string(rec.Status), rec.GeneratedContent, rec.ApprovedBy,
		rec.ApprovedAt, rec.ImplementedAt, rec.AttemptCount, lastErr, next, updatedAt,
	}
	if expected == 0 {
		query = `INSERT INTO remediation_records (` + recordColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (issue_id) DO NOTHING`
	} else {
		query = `UPDATE remediation_records SET
				document_id = $2, status = $3, generated_content = $4, approved_by = $5,
				approved_at = $6, implemented_at = $7, attempt_count = $8, last_error = $9,
				version = $10, updated_at = $11
			WHERE issue_id = $1 AND version = $12`
		args = append(args, expected)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("swap record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	rec.Version = next
	rec.UpdatedAt = updatedAt
	return nil
}

func (s *Store) ListRecords(ctx context.Context, documentID uuid.UUID) ([]*models.RemediationRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordColumns+` FROM remediation_records WHERE document_id = $1 ORDER BY issue_id`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) PruneRecords(ctx context.Context, documentID uuid.UUID, live []uuid.UUID) error {
	var err error
	if len(live) == 0 {
		_, err = s.db.Exec(ctx, "DELETE FROM remediation_records WHERE document_id = $1", documentID)
	} else {
		_, err = s.db.Exec(ctx,
			"DELETE FROM remediation_records WHERE document_id = $1 AND NOT (issue_id = ANY($2))",
			documentID, live,
		)
	}
	if err != nil {
		return fmt.Errorf("prune records: %w", err)
	}
	return nil
}

func collectRecords(rows pgx.Rows) ([]*models.RemediationRecord, error) {
	defer rows.Close()

	var out []*models.RemediationRecord
	for rows.Next() {
		var (
			r       models.RemediationRecord
			status  string
			lastErr []byte
		)
		if err := rows.Scan(&r.IssueID, &r.DocumentID, &status, &r.GeneratedContent, &r.ApprovedBy,
			&r.ApprovedAt, &r.ImplementedAt, &r.AttemptCount, &lastErr, &r.Version, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Status = models.RemediationStatus(status)
		if len(lastErr) > 0 {
			r.LastError = &models.RemediationError{}
			if err := json.Unmarshal(lastErr, r.LastError); err != nil {
				return nil, fmt.Errorf("decode last error for issue %s: %w", r.IssueID, err)
			}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) SaveContent(ctx context.Context, documentID uuid.UUID, content *models.DocumentContent) error {
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO document_contents (document_id, content, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (document_id) DO UPDATE SET content = EXCLUDED.content, updated_at = now()`,
		documentID, b,
	)
	if err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	return nil
}

func (s *Store) GetContent(ctx context.Context, documentID uuid.UUID) (*models.DocumentContent, error) {
	var b []byte
	err := s.db.QueryRow(ctx, "SELECT content FROM document_contents WHERE document_id = $1", documentID).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	var c models.DocumentContent
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &c, nil
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := s.db.QueryRow(ctx,
		`SELECT id, title, file_path, page_count, status, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Title, &d.FilePath, &d.PageCount, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

// UpdateStatus sets the status and, when pageCount is positive, the page count.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string, pageCount int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $2,
			page_count = CASE WHEN $3 > 0 THEN $3 ELSE page_count END,
			updated_at = now()
		 WHERE id = $1`,
		id, status, pageCount,
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveReport(ctx context.Context, r models.ScoreReport) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO score_reports (document_id, overall_score, wcag_compliance_level, total_issues,
			critical_issues, high_issues, medium_issues, low_issues, resolved_issues, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.DocumentID, r.OverallScore, string(r.ComplianceLevel), r.TotalIssues,
		r.CriticalIssues, r.HighIssues, r.MediumIssues, r.LowIssues, r.ResolvedIssues, r.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *Store) LatestReport(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error) {
	var (
		r     models.ScoreReport
		level string
	)
	err := s.db.QueryRow(ctx,
		`SELECT document_id, overall_score, wcag_compliance_level, total_issues, critical_issues,
			high_issues, medium_issues, low_issues, resolved_issues, generated_at
		 FROM score_reports WHERE document_id = $1
		 ORDER BY generated_at DESC, id DESC LIMIT 1`,
		documentID,
	).Scan(&r.DocumentID, &r.OverallScore, &level, &r.TotalIssues, &r.CriticalIssues,
		&r.HighIssues, &r.MediumIssues, &r.LowIssues, &r.ResolvedIssues, &r.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	r.ComplianceLevel = models.ComplianceLevel(level)
	return &r, nil
}
