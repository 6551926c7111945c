package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfaccess/internal/bulk"
	"github.com/nikhilbhutani/pdfaccess/internal/extract"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

type analyzerMock struct {
	AnalyzeFunc func(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error)
}

func (m *analyzerMock) Analyze(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error) {
	return m.AnalyzeFunc(ctx, documentID)
}

type bulkRunnerMock struct {
	RunFunc func(ctx context.Context, req bulk.Request) (*models.BulkJob, error)
}

func (m *bulkRunnerMock) Run(ctx context.Context, req bulk.Request) (*models.BulkJob, error) {
	return m.RunFunc(ctx, req)
}

func task(t *testing.T, typ string, payload any) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(typ, data)
}

func TestAnalyzeWorker(t *testing.T) {
	t.Parallel()

	docID := uuid.New()

	tests := []struct {
		name      string
		payload   any
		err       error
		wantErr   bool
		wantSkip  bool
		wantCalls int
	}{
		{name: "success", payload: queue.DocumentAnalyzePayload{DocumentID: docID.String()}, wantCalls: 1},
		{name: "bad id", payload: queue.DocumentAnalyzePayload{DocumentID: "nope"}, wantErr: true, wantSkip: true},
		{name: "missing document", payload: queue.DocumentAnalyzePayload{DocumentID: docID.String()},
			err: fmt.Errorf("get document: %w", store.ErrNotFound), wantErr: true, wantSkip: true, wantCalls: 1},
		{name: "invalid pdf", payload: queue.DocumentAnalyzePayload{DocumentID: docID.String()},
			err: fmt.Errorf("extract content: %w", extract.ErrInvalidPDF), wantErr: true, wantSkip: true, wantCalls: 1},
		{name: "transient", payload: queue.DocumentAnalyzePayload{DocumentID: docID.String()},
			err: errors.New("connection reset"), wantErr: true, wantCalls: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			w := NewAnalyzeWorker(&analyzerMock{AnalyzeFunc: func(_ context.Context, id uuid.UUID) (*models.ScoreReport, error) {
				calls++
				assert.Equal(t, docID, id)
				if tc.err != nil {
					return nil, tc.err
				}
				return &models.ScoreReport{DocumentID: id, OverallScore: 90, ComplianceLevel: models.ComplianceAAA}, nil
			}})

			err := w.ProcessTask(context.Background(), task(t, queue.TypeDocumentAnalyze, tc.payload))
			assert.Equal(t, tc.wantCalls, calls)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantSkip, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestBulkWorker(t *testing.T) {
	t.Parallel()

	filter := models.IssueFilter{IssueTypes: []models.IssueType{models.IssueMissingAltText}}

	t.Run("runs job", func(t *testing.T) {
		t.Parallel()
		var got bulk.Request
		w := NewBulkWorker(&bulkRunnerMock{RunFunc: func(_ context.Context, req bulk.Request) (*models.BulkJob, error) {
			got = req
			return &models.BulkJob{ID: uuid.New(), Succeeded: 3}, nil
		}})

		err := w.ProcessTask(context.Background(), task(t, queue.TypeRemediationBulk, queue.RemediationBulkPayload{
			Filter: filter, Operation: models.BulkApprove, ApprovedBy: "reviewer@example.com",
		}))
		require.NoError(t, err)
		assert.Equal(t, filter, got.Filter)
		assert.Equal(t, models.BulkApprove, got.Operation)
		assert.Equal(t, "reviewer@example.com", got.ApprovedBy)
	})

	t.Run("rejected request is not retried", func(t *testing.T) {
		t.Parallel()
		w := NewBulkWorker(&bulkRunnerMock{RunFunc: func(context.Context, bulk.Request) (*models.BulkJob, error) {
			return nil, bulk.ErrEmptyFilter
		}})

		err := w.ProcessTask(context.Background(), task(t, queue.TypeRemediationBulk, queue.RemediationBulkPayload{Operation: models.BulkGenerate}))
		require.ErrorIs(t, err, asynq.SkipRetry)
		assert.ErrorIs(t, err, bulk.ErrEmptyFilter)
	})

	t.Run("cancelled job is retried", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := NewBulkWorker(&bulkRunnerMock{RunFunc: func(context.Context, bulk.Request) (*models.BulkJob, error) {
			return &models.BulkJob{ID: uuid.New(), Cancelled: true}, nil
		}})

		err := w.ProcessTask(ctx, task(t, queue.TypeRemediationBulk, queue.RemediationBulkPayload{Filter: filter, Operation: models.BulkGenerate}))
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})
}
