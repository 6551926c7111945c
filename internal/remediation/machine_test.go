package remediation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfaccess/internal/audit"
	"github.com/nikhilbhutani/pdfaccess/internal/lock"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/store"
	"github.com/nikhilbhutani/pdfaccess/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	machine  *Machine
	records  *memory.Store
	gen      *generatorMock
	rw       *rewriterMock
	rescorer *rescorerMock
	issue    models.Issue
	content  *models.DocumentContent
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	docID := uuid.New()
	f := &fixture{
		records: memory.New(),
		gen: &generatorMock{GenerateFunc: func(context.Context, Request) (Response, error) {
			return Response{Content: "Bar chart of quarterly revenue"}, nil
		}},
		rw: &rewriterMock{ApplyFunc: func(context.Context, RewriteRequest) (RewriteResult, error) {
			return RewriteResult{Success: true}, nil
		}},
		rescorer: &rescorerMock{},
		issue: models.Issue{
			ID:          uuid.New(),
			DocumentID:  docID,
			Type:        models.IssueMissingAltText,
			Severity:    models.SeverityHigh,
			PageNumber:  ptr(1),
			Description: "Image 1 on page 1 has no alternative text",
			Location:    models.Location{Page: ptr(1), Element: "image", ElementIndex: 0},
		},
		content: &models.DocumentContent{Pages: []models.PageContent{{
			Number: 1,
			Text:   "Revenue grew in every quarter of the year.",
			Images: []models.ImageDescriptor{{Caption: ptr("Figure 1: revenue")}},
		}}},
	}
	f.machine = NewMachine(f.records, lock.NewMemory(), f.gen, f.rw, f.rescorer, cfg)
	return f
}

func (f *fixture) approved(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.machine.Generate(ctx, f.issue, f.content)
	require.NoError(t, err)
	_, err = f.machine.Approve(ctx, f.issue.ID, "reviewer@example.com")
	require.NoError(t, err)
}

func TestMachine_FullWorkflow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	rec, err := f.machine.Generate(ctx, f.issue, f.content)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationGenerated, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)
	assert.Equal(t, "Bar chart of quarterly revenue", *rec.GeneratedContent)
	assert.Equal(t, f.issue.DocumentID, rec.DocumentID)

	rec, err = f.machine.Approve(ctx, f.issue.ID, "reviewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RemediationApproved, rec.Status)
	require.NotNil(t, rec.ApprovedBy)
	assert.Equal(t, "reviewer@example.com", *rec.ApprovedBy)
	assert.NotNil(t, rec.ApprovedAt)

	rec, err = f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RemediationImplemented, rec.Status)
	assert.NotNil(t, rec.ImplementedAt)

	calls := f.rw.ApplyCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bar chart of quarterly revenue", calls[0].RemediationContent)
	assert.Equal(t, []uuid.UUID{f.issue.DocumentID}, f.rescorer.RescoreCalls())
}

func TestMachine_GetPendingView(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())

	rec, err := f.machine.Get(context.Background(), f.issue)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationPending, rec.Status)
	assert.Equal(t, int64(0), rec.Version)

	_, err = f.records.GetRecord(context.Background(), f.issue.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "reading must not create a record")
}

func TestMachine_ApproveWithoutGenerate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())

	_, err := f.machine.Approve(context.Background(), f.issue.ID, "someone")
	var it *InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, models.RemediationPending, it.From)
	assert.Equal(t, models.RemediationApproved, it.To)
	assert.True(t, IsKind(err, KindInvalidTransition))
}

func TestMachine_ApproveIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.approved(t)

	first, err := f.records.GetRecord(ctx, f.issue.ID)
	require.NoError(t, err)

	again, err := f.machine.Approve(ctx, f.issue.ID, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
	assert.Equal(t, "reviewer@example.com", *again.ApprovedBy)
	assert.Equal(t, *first.ApprovedAt, *again.ApprovedAt)
}

func TestMachine_ConcurrentGenerateCreatesOneRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	f.gen.GenerateFunc = func(context.Context, Request) (Response, error) {
		once.Do(func() { close(entered) })
		<-unblock
		return Response{Content: "generated"}, nil
	}

	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = f.machine.Generate(ctx, f.issue, f.content)
	}()

	<-entered
	_, err := f.machine.Generate(ctx, f.issue, f.content)
	assert.ErrorIs(t, err, ErrOperationInProgress)

	close(unblock)
	<-done
	require.NoError(t, firstErr)

	rec, err := f.records.GetRecord(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AttemptCount)
	assert.Equal(t, int64(1), rec.Version)
	assert.Len(t, f.gen.GenerateCalls(), 1)
}

// hookedClaimer runs before once, ahead of the first claim.
type hookedClaimer struct {
	lock.Claimer
	before func()
	fired  atomic.Bool
}

func (c *hookedClaimer) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Release, error) {
	if c.before != nil && c.fired.CompareAndSwap(false, true) {
		c.before()
	}
	return c.Claimer.Acquire(ctx, key, ttl)
}

func TestMachine_GenerateRechecksStateAfterClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	claimer := &hookedClaimer{Claimer: lock.NewMemory()}
	m := NewMachine(f.records, claimer, f.gen, f.rw, f.rescorer, DefaultConfig())
	claimer.before = func() {
		// A second caller completes a whole generate between our state
		// check and our claim.
		_, err := m.Generate(ctx, f.issue, f.content)
		require.NoError(t, err)
	}

	_, err := m.Generate(ctx, f.issue, f.content)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidTransition))
	assert.Len(t, f.gen.GenerateCalls(), 1, "no second generation call")

	rec, err := f.records.GetRecord(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationGenerated, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)
}

func TestMachine_GenerationFailureCreatesNoRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.gen.GenerateFunc = func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("upstream 500")
	}

	_, err := f.machine.Generate(ctx, f.issue, f.content)
	assert.Equal(t, KindGenerationFailed, KindOf(err))

	_, err = f.records.GetRecord(ctx, f.issue.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMachine_EmptyContentIsGenerationFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	f.gen.GenerateFunc = func(context.Context, Request) (Response, error) {
		return Response{Content: "   "}, nil
	}

	_, err := f.machine.Generate(context.Background(), f.issue, f.content)
	assert.Equal(t, KindGenerationFailed, KindOf(err))
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestMachine_GenerationTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{GenerateTimeout: 20 * time.Millisecond})
	f.gen.GenerateFunc = func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	}

	_, err := f.machine.Generate(context.Background(), f.issue, f.content)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestMachine_RejectRegenerateAccumulatesAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	_, err := f.machine.Generate(ctx, f.issue, f.content)
	require.NoError(t, err)
	rec, err := f.machine.Reject(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationRejected, rec.Status)

	f.gen.GenerateFunc = func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("rate limited")
	}
	_, err = f.machine.Generate(ctx, f.issue, f.content)
	require.Error(t, err)

	rec, err = f.records.GetRecord(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationRejected, rec.Status, "failure leaves status alone")
	require.NotNil(t, rec.LastError)
	assert.Equal(t, string(KindGenerationFailed), rec.LastError.Kind)

	f.gen.GenerateFunc = func(context.Context, Request) (Response, error) {
		return Response{Content: "second try"}, nil
	}
	rec, err = f.machine.Generate(ctx, f.issue, f.content)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationGenerated, rec.Status)
	assert.Equal(t, 2, rec.AttemptCount)
	assert.Nil(t, rec.LastError)
}

func TestMachine_AuditTrail(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	trail := audit.NewMemory()
	f.machine.WithAuditor(trail)

	editor := audit.WithActor(context.Background(), "editor@example.com")
	_, err := f.machine.Generate(editor, f.issue, f.content)
	require.NoError(t, err)
	_, err = f.machine.Reject(audit.WithActor(context.Background(), "lead@example.com"), f.issue.ID)
	require.NoError(t, err)
	_, err = f.machine.Generate(editor, f.issue, f.content)
	require.NoError(t, err)
	_, err = f.machine.Approve(context.Background(), f.issue.ID, "reviewer@example.com")
	require.NoError(t, err)

	// Rejected transitions and idempotent approvals write nothing.
	_, err = f.machine.Reject(editor, f.issue.ID)
	require.True(t, IsKind(err, KindInvalidTransition))
	_, err = f.machine.Approve(context.Background(), f.issue.ID, "reviewer@example.com")
	require.NoError(t, err)

	got, err := trail.Trail(context.Background(), f.issue.ID)
	require.NoError(t, err)

	type step struct {
		event    string
		from, to models.RemediationStatus
		actor    string
	}
	want := []step{
		{"generate", models.RemediationPending, models.RemediationGenerated, "editor@example.com"},
		{"reject", models.RemediationGenerated, models.RemediationRejected, "lead@example.com"},
		{"generate", models.RemediationRejected, models.RemediationGenerated, "editor@example.com"},
		{"approve", models.RemediationGenerated, models.RemediationApproved, "reviewer@example.com"},
	}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.event, got[i].Event, "step %d", i)
		assert.Equal(t, w.from, got[i].FromStatus, "step %d", i)
		assert.Equal(t, w.to, got[i].ToStatus, "step %d", i)
		assert.Equal(t, w.actor, got[i].Actor, "step %d", i)
		assert.Equal(t, f.issue.DocumentID, got[i].DocumentID, "step %d", i)
	}
}

func TestMachine_AuditTrailRecordsFailureAndRevert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, Config{ImplementTimeout: 20 * time.Millisecond})
	trail := audit.NewMemory()
	f.machine.WithAuditor(trail)
	f.approved(t)
	f.rw.ApplyFunc = func(ctx context.Context, _ RewriteRequest) (RewriteResult, error) {
		<-ctx.Done()
		return RewriteResult{}, ctx.Err()
	}

	_, err := f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	require.Equal(t, KindTimeout, KindOf(err))

	f.rw.ApplyFunc = func(context.Context, RewriteRequest) (RewriteResult, error) {
		return RewriteResult{Success: false, Error: "struct tree is locked"}, nil
	}
	_, err = f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	require.Equal(t, KindImplementationFailed, KindOf(err))

	got, err := trail.Trail(ctx, f.issue.ID)
	require.NoError(t, err)
	events := make([]string, len(got))
	for i, e := range got {
		events[i] = e.Event
	}
	assert.Equal(t, []string{"generate", "approve", "implement", "revert", "implement", "fail"}, events)

	revert := got[3]
	assert.Equal(t, models.RemediationImplementationPending, revert.FromStatus)
	assert.Equal(t, models.RemediationApproved, revert.ToStatus)
	assert.NotEmpty(t, revert.Detail)
	assert.Contains(t, got[5].Detail, "struct tree is locked")
}

func TestMachine_ImplementTimeoutReverts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, Config{ImplementTimeout: 20 * time.Millisecond})
	f.approved(t)
	f.rw.ApplyFunc = func(ctx context.Context, _ RewriteRequest) (RewriteResult, error) {
		<-ctx.Done()
		return RewriteResult{}, ctx.Err()
	}

	_, err := f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	assert.Equal(t, KindTimeout, KindOf(err))

	rec, err := f.records.GetRecord(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationApproved, rec.Status)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, string(KindTimeout), rec.LastError.Kind)
	assert.Empty(t, f.rescorer.RescoreCalls())
}

func TestMachine_ImplementFailureThenRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.approved(t)
	f.rw.ApplyFunc = func(context.Context, RewriteRequest) (RewriteResult, error) {
		return RewriteResult{Success: false, Error: "struct tree is locked"}, nil
	}

	_, err := f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	assert.Equal(t, KindImplementationFailed, KindOf(err))

	rec, err := f.records.GetRecord(ctx, f.issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationFailed, rec.Status)
	assert.Contains(t, rec.LastError.Message, "struct tree is locked")

	_, err = f.machine.Generate(ctx, f.issue, f.content)
	assert.True(t, IsKind(err, KindInvalidTransition), "approved content is retried, not regenerated")

	f.rw.ApplyFunc = func(context.Context, RewriteRequest) (RewriteResult, error) {
		return RewriteResult{Success: true}, nil
	}
	rec, err = f.machine.Implement(ctx, f.issue.ID, ImplementOptions{DeferRescore: true})
	require.NoError(t, err)
	assert.Equal(t, models.RemediationImplemented, rec.Status)
	assert.Empty(t, f.rescorer.RescoreCalls(), "rescore deferred")
}

func TestMachine_FailedBeforeApprovalCanRegenerate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	_, err := f.machine.Generate(ctx, f.issue, f.content)
	require.NoError(t, err)
	rec, err := f.machine.Fail(ctx, f.issue.ID, KindGenerationFailed, "content unusable")
	require.NoError(t, err)
	assert.Equal(t, models.RemediationFailed, rec.Status)

	_, err = f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	assert.True(t, IsKind(err, KindInvalidTransition))

	rec, err = f.machine.Generate(ctx, f.issue, f.content)
	require.NoError(t, err)
	assert.Equal(t, models.RemediationGenerated, rec.Status)
}

func TestMachine_ImplementedIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	f.approved(t)
	_, err := f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	require.NoError(t, err)

	_, err = f.machine.Generate(ctx, f.issue, f.content)
	assert.True(t, IsKind(err, KindInvalidTransition))
	_, err = f.machine.Approve(ctx, f.issue.ID, "x")
	assert.True(t, IsKind(err, KindInvalidTransition))
	_, err = f.machine.Implement(ctx, f.issue.ID, ImplementOptions{})
	assert.True(t, IsKind(err, KindInvalidTransition))
}

func TestMachine_ContextUnavailableSkipsGenerator(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	f.issue.Type = models.IssueMissingText

	_, err := f.machine.Generate(context.Background(), f.issue, f.content)
	assert.Equal(t, KindContextUnavailable, KindOf(err))
	assert.Empty(t, f.gen.GenerateCalls())
}

func TestNext(t *testing.T) {
	t.Parallel()

	at := time.Now()
	rec := func(s models.RemediationStatus, approved bool) *models.RemediationRecord {
		r := &models.RemediationRecord{Status: s}
		if approved {
			r.ApprovedAt = &at
		}
		return r
	}

	tests := []struct {
		name string
		rec  *models.RemediationRecord
		ev   Event
		want models.RemediationStatus
		ok   bool
	}{
		{"absent generate", nil, EventGenerate, models.RemediationGenerated, true},
		{"absent approve", nil, EventApprove, "", false},
		{"generated approve", rec(models.RemediationGenerated, false), EventApprove, models.RemediationApproved, true},
		{"generated reject", rec(models.RemediationGenerated, false), EventReject, models.RemediationRejected, true},
		{"generated implement", rec(models.RemediationGenerated, false), EventImplement, "", false},
		{"approved approve", rec(models.RemediationApproved, true), EventApprove, models.RemediationApproved, true},
		{"approved implement", rec(models.RemediationApproved, true), EventImplement, models.RemediationImplementationPending, true},
		{"approved reject", rec(models.RemediationApproved, true), EventReject, "", false},
		{"rejected generate", rec(models.RemediationRejected, false), EventGenerate, models.RemediationGenerated, true},
		{"rejected approve", rec(models.RemediationRejected, false), EventApprove, "", false},
		{"pending impl complete", rec(models.RemediationImplementationPending, true), EventComplete, models.RemediationImplemented, true},
		{"pending impl fail", rec(models.RemediationImplementationPending, true), EventFail, models.RemediationFailed, true},
		{"failed approved implement", rec(models.RemediationFailed, true), EventImplement, models.RemediationImplementationPending, true},
		{"failed approved generate", rec(models.RemediationFailed, true), EventGenerate, "", false},
		{"failed unapproved generate", rec(models.RemediationFailed, false), EventGenerate, models.RemediationGenerated, true},
		{"failed unapproved implement", rec(models.RemediationFailed, false), EventImplement, "", false},
		{"implemented generate", rec(models.RemediationImplemented, true), EventGenerate, "", false},
		{"implemented fail", rec(models.RemediationImplemented, true), EventFail, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Next(tt.rec, tt.ev)
			if !tt.ok {
				var it *InvalidTransitionError
				require.ErrorAs(t, err, &it)
				assert.Equal(t, targets[tt.ev], it.To)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
