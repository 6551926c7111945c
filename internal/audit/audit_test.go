package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

func TestActorContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, ActorFrom(ctx))
	assert.Equal(t, ctx, WithActor(ctx, ""))
	assert.Equal(t, "reviewer-1", ActorFrom(WithActor(ctx, "reviewer-1")))
}

func TestMemory_TrailIsPerIssueInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	issue, other := uuid.New(), uuid.New()

	require.NoError(t, m.Log(ctx, LogEntry{IssueID: issue, Event: "generate", From: models.RemediationPending, To: models.RemediationGenerated}))
	require.NoError(t, m.Log(ctx, LogEntry{IssueID: other, Event: "generate", From: models.RemediationPending, To: models.RemediationGenerated}))
	require.NoError(t, m.Log(ctx, LogEntry{IssueID: issue, Event: "approve", From: models.RemediationGenerated, To: models.RemediationApproved, Actor: "u1"}))

	trail, err := m.Trail(ctx, issue)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "generate", trail[0].Event)
	assert.Equal(t, "approve", trail[1].Event)
	assert.Equal(t, "u1", trail[1].Actor)
	assert.Less(t, trail[0].ID, trail[1].ID)

	none, err := m.Trail(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_UsageSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	records := []models.LLMUsageLog{
		{Provider: "openai", Model: "gpt-4o-mini", InputTokens: 100, OutputTokens: 20, CostUSD: 0.001},
		{Provider: "openai", Model: "gpt-4o-mini", InputTokens: 50, OutputTokens: 10, CostUSD: 0.0005},
		{Provider: "anthropic", Model: "claude-3-5-haiku", TotalTokens: 500, CostUSD: 0.01},
	}
	for _, r := range records {
		require.NoError(t, m.LogLLMUsage(ctx, r))
	}

	got, err := m.UsageSummary(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "anthropic", got[0].Provider)
	assert.Equal(t, 1, got[0].TotalCalls)
	assert.Equal(t, 500, got[0].TotalTokens)
	assert.Equal(t, "openai", got[1].Provider)
	assert.Equal(t, 2, got[1].TotalCalls)
	assert.Equal(t, 180, got[1].TotalTokens)
	assert.InDelta(t, 0.0015, got[1].TotalCostUSD, 1e-9)

	future := time.Now().Add(time.Hour)
	got, err = m.UsageSummary(ctx, &future, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUsageSummaryQuery(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	tests := []struct {
		name      string
		start     *time.Time
		end       *time.Time
		wantWhere string
		wantArgs  []any
	}{
		{name: "unbounded"},
		{name: "start only", start: &start, wantWhere: " WHERE created_at >= $1", wantArgs: []any{start}},
		{name: "end only", end: &end, wantWhere: " WHERE created_at <= $1", wantArgs: []any{end}},
		{name: "both", start: &start, end: &end, wantWhere: " WHERE created_at >= $1 AND created_at <= $2", wantArgs: []any{start, end}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, args := usageSummaryQuery(tc.start, tc.end)
			assert.Contains(t, q, "FROM llm_usage_logs"+tc.wantWhere+" GROUP BY provider, model")
			assert.Equal(t, tc.wantArgs, args)
		})
	}
}
