package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AcquireRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	release, err := m.Acquire(ctx, "issue-1", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "issue-1", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	_, err = m.Acquire(ctx, "issue-2", time.Minute)
	assert.NoError(t, err, "different keys do not conflict")

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	_, err = m.Acquire(ctx, "issue-1", time.Minute)
	assert.NoError(t, err)
}

func TestMemory_ExpiredClaimCanBeTaken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	stale, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// the stale owner must not drop the new claim
	require.NoError(t, stale(ctx))
	_, err = m.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrHeld)
}

func TestMemory_OneWinnerUnderContention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, "hot", time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
