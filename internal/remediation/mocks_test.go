package remediation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type generatorMock struct {
	GenerateFunc func(ctx context.Context, req Request) (Response, error)

	mu    sync.Mutex
	calls []Request
}

func (m *generatorMock) Generate(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, req)
}

func (m *generatorMock) GenerateCalls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

type rewriterMock struct {
	ApplyFunc func(ctx context.Context, req RewriteRequest) (RewriteResult, error)

	mu    sync.Mutex
	calls []RewriteRequest
}

func (m *rewriterMock) Apply(ctx context.Context, req RewriteRequest) (RewriteResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.ApplyFunc(ctx, req)
}

func (m *rewriterMock) ApplyCalls() []RewriteRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RewriteRequest(nil), m.calls...)
}

type rescorerMock struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (m *rescorerMock) Rescore(_ context.Context, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, documentID)
	return nil
}

func (m *rescorerMock) RescoreCalls() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.calls...)
}
