package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/metrics"
	"github.com/thatlq1812/user-agreement/internal/queue"
	"github.com/thatlq1812/user-agreement/internal/service"
)

// RunnerConfig tunes the polling loop.
type RunnerConfig struct {
	Interval    time.Duration
	Batch       int
	Lease       time.Duration
	MaxAttempts int
	// Lower bound for a postpone so a task never spins
	MinPostpone time.Duration
}

// Stats summarizes one pass.
type Stats struct {
	Claimed   int
	Processed map[Outcome]int
	Failed    int
}

// Runner feeds queued expiry tasks to the sweeper.
type Runner struct {
	q       queue.Queue
	sweeper *Sweeper
	clock   service.Clock
	cfg     RunnerConfig
	log     *zap.Logger
}

func NewRunner(q queue.Queue, sweeper *Sweeper, clock service.Clock, cfg RunnerConfig, log *zap.Logger) *Runner {
	if clock == nil {
		clock = service.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 20
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MinPostpone <= 0 {
		cfg.MinPostpone = time.Minute
	}
	return &Runner{q: q, sweeper: sweeper, clock: clock, cfg: cfg, log: log}
}

// Run polls until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("sweeper started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch", r.cfg.Batch),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes one batch.
func (r *Runner) RunOnce(ctx context.Context) (Stats, error) {
	stats := Stats{Processed: map[Outcome]int{}}

	tasks, err := r.q.Claim(ctx, domain.QueueExpiry, r.cfg.Batch, r.cfg.Lease)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(tasks)

	for _, t := range tasks {
		outcome, err := r.handle(ctx, t)
		if err != nil {
			stats.Failed++
			metrics.ObserveSweep("failed")
			continue
		}
		stats.Processed[outcome]++
		metrics.ObserveSweep(string(outcome))
	}
	return stats, nil
}

func (r *Runner) handle(ctx context.Context, t queue.Task) (Outcome, error) {
	var task domain.ExpiryTask
	if err := t.Decode(&task); err != nil {
		r.log.Error("dropping undecodable task", zap.Int64("task_id", t.ID), zap.Error(err))
		return OutcomeDiscarded, r.q.Ack(ctx, t.ID)
	}

	outcome, err := r.sweeper.Process(ctx, task)

	var postpone *PostponeError
	switch {
	case errors.As(err, &postpone):
		delay := postpone.Until.Sub(r.clock.Now())
		if delay < r.cfg.MinPostpone {
			delay = r.cfg.MinPostpone
		}
		return OutcomePostponed, r.q.Postpone(ctx, t.ID, delay)

	case err != nil:
		attempt := t.Attempts + 1
		if attempt >= r.cfg.MaxAttempts {
			r.log.Error("dropping expiry task after repeated failures",
				zap.Int64("task_id", t.ID),
				zap.String("user_id", task.UserID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			if ackErr := r.q.Ack(ctx, t.ID); ackErr != nil {
				return "", ackErr
			}
			return "", err
		}
		backoff := time.Duration(attempt*attempt) * 30 * time.Second
		if failErr := r.q.Fail(ctx, t.ID, err.Error(), backoff); failErr != nil {
			return "", failErr
		}
		return "", err
	}

	return outcome, r.q.Ack(ctx, t.ID)
}
