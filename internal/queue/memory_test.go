package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

type payload struct {
	N int `json:"n"`
}

func TestMemory_ClaimLeasesTasks(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	q := NewMemory(clock.now)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, "jobs", payload{N: i}))
	}

	first, err := q.Claim(ctx, "jobs", 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 2)

	var p payload
	require.NoError(t, first[0].Decode(&p))
	assert.Equal(t, 1, p.N)

	// Leased tasks are invisible until the lease runs out
	second, err := q.Claim(ctx, "jobs", 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, second, 1)

	clock.advance(2 * time.Minute)
	redelivered, err := q.Claim(ctx, "jobs", 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, redelivered, 3)
}

func TestMemory_PostponeDoesNotCountAttempt(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	q := NewMemory(clock.now)

	require.NoError(t, q.Enqueue(ctx, "jobs", payload{N: 1}))
	tasks, err := q.Claim(ctx, "jobs", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, q.Postpone(ctx, tasks[0].ID, time.Hour))

	clock.advance(30 * time.Minute)
	none, err := q.Claim(ctx, "jobs", 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, none)

	clock.advance(31 * time.Minute)
	again, err := q.Claim(ctx, "jobs", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 0, again[0].Attempts)
}

func TestMemory_FailCountsAttemptAndAckRemoves(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	q := NewMemory(clock.now)

	require.NoError(t, q.Enqueue(ctx, "jobs", payload{N: 1}))
	tasks, err := q.Claim(ctx, "jobs", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, tasks[0].ID, "boom", time.Second))
	clock.advance(time.Second)

	tasks, err = q.Claim(ctx, "jobs", 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].Attempts)

	require.NoError(t, q.Ack(ctx, tasks[0].ID))
	n, err := q.Len(ctx, "jobs")
	require.NoError(t, err)
	assert.Zero(t, n)
}
