package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresQueue struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgres stores tasks in the queue_tasks table.
func NewPostgres(db *pgxpool.Pool, now func() time.Time) Queue {
	if now == nil {
		now = time.Now
	}
	return &postgresQueue{db: db, now: now}
}

func (q *postgresQueue) Enqueue(ctx context.Context, queue string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	_, err = q.db.Exec(ctx,
		`INSERT INTO queue_tasks (queue, payload, available_at) VALUES ($1, $2, $3)`,
		queue, raw, q.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *postgresQueue) Claim(ctx context.Context, queue string, n int, lease time.Duration) ([]Task, error) {
	now := q.now()
	rows, err := q.db.Query(ctx, `
        UPDATE queue_tasks SET leased_until = $4
        WHERE id IN (
            SELECT id FROM queue_tasks
            WHERE queue = $1
              AND available_at <= $3
              AND (leased_until IS NULL OR leased_until < $3)
            ORDER BY available_at, id
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )
        RETURNING id, queue, payload, attempts, created_at
    `, queue, n, now, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Queue, &t.Payload, &t.Attempts, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func (q *postgresQueue) Ack(ctx context.Context, id int64) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM queue_tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}
	return nil
}

func (q *postgresQueue) Postpone(ctx context.Context, id int64, delay time.Duration) error {
	_, err := q.db.Exec(ctx,
		`UPDATE queue_tasks SET available_at = $2, leased_until = NULL WHERE id = $1`,
		id, q.now().Add(delay),
	)
	if err != nil {
		return fmt.Errorf("failed to postpone task: %w", err)
	}
	return nil
}

func (q *postgresQueue) Fail(ctx context.Context, id int64, reason string, backoff time.Duration) error {
	_, err := q.db.Exec(ctx, `
        UPDATE queue_tasks
        SET attempts = attempts + 1, last_error = $2, available_at = $3, leased_until = NULL
        WHERE id = $1
    `, id, reason, q.now().Add(backoff))
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	return nil
}

func (q *postgresQueue) Len(ctx context.Context, queue string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM queue_tasks WHERE queue = $1`, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}
