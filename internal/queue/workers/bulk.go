package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfaccess/internal/bulk"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
)

type BulkRunner interface {
	Run(ctx context.Context, req bulk.Request) (*models.BulkJob, error)
}

type BulkWorker struct {
	runner BulkRunner
}

func NewBulkWorker(runner BulkRunner) *BulkWorker {
	return &BulkWorker{runner: runner}
}

func (w *BulkWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RemediationBulkPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	job, err := w.runner.Run(ctx, bulk.Request{
		Filter:     payload.Filter,
		Operation:  payload.Operation,
		ApprovedBy: payload.ApprovedBy,
	})
	if err != nil {
		if errors.Is(err, bulk.ErrEmptyFilter) || errors.Is(err, bulk.ErrInvalidOperation) || errors.Is(err, bulk.ErrMissingApprover) {
			return fmt.Errorf("run bulk %s: %w: %w", payload.Operation, err, asynq.SkipRetry)
		}
		return fmt.Errorf("run bulk %s: %w", payload.Operation, err)
	}

	// Item failures are recorded on the job; only a cancelled run is retried.
	if job.Cancelled {
		return fmt.Errorf("bulk job %s cancelled after %d items: %w", job.ID, job.Succeeded+job.Failed, ctx.Err())
	}

	if rw := t.ResultWriter(); rw != nil {
		if data, err := json.Marshal(job); err == nil {
			if _, err := rw.Write(data); err != nil {
				slog.Warn("write bulk job result", "job_id", job.ID, "error", err)
			}
		}
	}
	return nil
}
