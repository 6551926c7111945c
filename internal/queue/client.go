package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfaccess/internal/config"
)

// ErrDuplicate means an identical task is already queued.
var ErrDuplicate = errors.New("task already queued")

type Client struct {
	client *asynq.Client
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueDocumentAnalyze queues analysis of one document. A second request for
// the same document while the first is still queued returns ErrDuplicate.
func (c *Client) EnqueueDocumentAnalyze(ctx context.Context, payload DocumentAnalyzePayload) (string, error) {
	return c.enqueue(ctx, TypeDocumentAnalyze, payload,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Unique(10*time.Minute),
	)
}

func (c *Client) EnqueueRemediationBulk(ctx context.Context, payload RemediationBulkPayload) (string, error) {
	return c.enqueue(ctx, TypeRemediationBulk, payload,
		asynq.Queue("low"),
		asynq.MaxRetry(1),
		asynq.Timeout(60*time.Minute),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", fmt.Errorf("enqueue %s: %w", taskType, ErrDuplicate)
	}
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}
