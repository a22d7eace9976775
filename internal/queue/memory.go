package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryTask struct {
	Task
	availableAt time.Time
	leasedUntil time.Time
	lastError   string
}

// Memory is an in-process Queue.
type Memory struct {
	mu     sync.Mutex
	lastID int64
	tasks  map[int64]*memoryTask
	now    func() time.Time
}

var _ Queue = (*Memory)(nil)

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{tasks: make(map[int64]*memoryTask), now: now}
}

func (q *Memory) Enqueue(ctx context.Context, queue string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.lastID++
	now := q.now()
	q.tasks[q.lastID] = &memoryTask{
		Task:        Task{ID: q.lastID, Queue: queue, Payload: raw, CreatedAt: now},
		availableAt: now,
	}
	return nil
}

func (q *Memory) Claim(ctx context.Context, queue string, n int, lease time.Duration) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due []*memoryTask
	for _, t := range q.tasks {
		if t.Queue != queue || t.availableAt.After(now) || t.leasedUntil.After(now) {
			continue
		}
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].availableAt.Equal(due[j].availableAt) {
			return due[i].availableAt.Before(due[j].availableAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > n {
		due = due[:n]
	}

	out := make([]Task, 0, len(due))
	for _, t := range due {
		t.leasedUntil = now.Add(lease)
		out = append(out, t.Task)
	}
	return out, nil
}

func (q *Memory) Ack(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.tasks, id)
	return nil
}

func (q *Memory) Postpone(ctx context.Context, id int64, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("task %d not found", id)
	}
	t.availableAt = q.now().Add(delay)
	t.leasedUntil = time.Time{}
	return nil
}

func (q *Memory) Fail(ctx context.Context, id int64, reason string, backoff time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("task %d not found", id)
	}
	t.Attempts++
	t.lastError = reason
	t.availableAt = q.now().Add(backoff)
	t.leasedUntil = time.Time{}
	return nil
}

func (q *Memory) Len(ctx context.Context, queue string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range q.tasks {
		if t.Queue == queue {
			n++
		}
	}
	return n, nil
}
