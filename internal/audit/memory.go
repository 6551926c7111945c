package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

// Memory keeps the trail in process. It backs the in-memory deployment and tests.
type Memory struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	usage   []models.LLMUsageLog
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: func() time.Time { return time.Now().UTC() }}
}

var _ Logger = (*Memory)(nil)

func (m *Memory) Log(_ context.Context, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, models.AuditEntry{
		ID:         int64(len(m.entries) + 1),
		IssueID:    entry.IssueID,
		DocumentID: entry.DocumentID,
		Event:      entry.Event,
		FromStatus: entry.From,
		ToStatus:   entry.To,
		Actor:      entry.Actor,
		Detail:     entry.Detail,
		CreatedAt:  m.now(),
	})
	return nil
}

func (m *Memory) Trail(_ context.Context, issueID uuid.UUID) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var trail []models.AuditEntry
	for _, e := range m.entries {
		if e.IssueID == issueID {
			trail = append(trail, e)
		}
	}
	return trail, nil
}

func (m *Memory) LogLLMUsage(_ context.Context, record models.LLMUsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.TotalTokens == 0 {
		record.TotalTokens = record.InputTokens + record.OutputTokens
	}
	record.ID = int64(len(m.usage) + 1)
	record.CreatedAt = m.now()
	m.usage = append(m.usage, record)
	return nil
}

func (m *Memory) UsageSummary(_ context.Context, startDate, endDate *time.Time) ([]models.UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct{ provider, model string }
	byKey := map[key]*models.UsageSummary{}
	var order []key
	for _, u := range m.usage {
		if startDate != nil && u.CreatedAt.Before(*startDate) {
			continue
		}
		if endDate != nil && u.CreatedAt.After(*endDate) {
			continue
		}
		k := key{u.Provider, u.Model}
		us, ok := byKey[k]
		if !ok {
			us = &models.UsageSummary{Provider: u.Provider, Model: u.Model}
			byKey[k] = us
			order = append(order, k)
		}
		us.TotalCalls++
		us.TotalTokens += u.TotalTokens
		us.TotalCostUSD += u.CostUSD
	}

	summaries := make([]models.UsageSummary, 0, len(order))
	for _, k := range order {
		summaries = append(summaries, *byKey[k])
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].TotalCostUSD > summaries[j].TotalCostUSD
	})
	return summaries, nil
}
