package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfaccess/internal/extract"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/queue"
	"github.com/nikhilbhutani/pdfaccess/internal/storage"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
)

type Analyzer interface {
	Analyze(ctx context.Context, documentID uuid.UUID) (*models.ScoreReport, error)
}

type AnalyzeWorker struct {
	analyzer Analyzer
}

func NewAnalyzeWorker(analyzer Analyzer) *AnalyzeWorker {
	return &AnalyzeWorker{analyzer: analyzer}
}

func (w *AnalyzeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentAnalyzePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %w: %w", err, asynq.SkipRetry)
	}

	slog.Info("analyzing document", "document_id", docID)

	report, err := w.analyzer.Analyze(ctx, docID)
	if err != nil {
		if permanent(err) {
			return fmt.Errorf("analyze document %s: %w: %w", docID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("analyze document %s: %w", docID, err)
	}

	slog.Info("document analysis task done",
		"document_id", docID,
		"score", report.OverallScore,
		"level", report.ComplianceLevel,
	)
	return nil
}

// permanent reports failures a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, extract.ErrTooLarge) ||
		errors.Is(err, extract.ErrInvalidPDF)
}
