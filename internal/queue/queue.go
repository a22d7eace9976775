// Package queue is an at-least-once background task queue. A claimed task is
// leased; if the worker neither acks nor reschedules it before the lease runs
// out, it becomes claimable again.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Task is one queued item.
type Task struct {
	ID        int64
	Queue     string
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("failed to decode task %d: %w", t.ID, err)
	}
	return nil
}

// Queue is implemented by the postgres and memory drivers.
type Queue interface {
	Enqueue(ctx context.Context, queue string, payload any) error

	// Claim leases up to n due tasks
	Claim(ctx context.Context, queue string, n int, lease time.Duration) ([]Task, error)

	// Ack removes a finished task
	Ack(ctx context.Context, id int64) error

	// Postpone redelivers the task after delay without counting an attempt
	Postpone(ctx context.Context, id int64, delay time.Duration) error

	// Fail counts an attempt and redelivers after backoff
	Fail(ctx context.Context, id int64, reason string, backoff time.Duration) error

	Len(ctx context.Context, queue string) (int, error)
}
