package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/internal/service"
)

// Outcome of processing one expiry task.
type Outcome string

const (
	OutcomeDeactivated Outcome = "deactivated"
	OutcomeCompliant   Outcome = "compliant"
	OutcomeDiscarded   Outcome = "discarded"
	OutcomePostponed   Outcome = "postponed"
)

// PostponeError asks for redelivery at Until. It matches domain.ErrPostponeRequested.
type PostponeError struct {
	Until time.Time
}

func (e *PostponeError) Error() string {
	return fmt.Sprintf("postpone requested until %s", e.Until.Format(time.RFC3339))
}

func (e *PostponeError) Unwrap() error { return domain.ErrPostponeRequested }

// Sweeper blocks accounts that still have not accepted an agreement they
// rejected once the grace period is over.
type Sweeper struct {
	store     repository.RevisionStore
	accounts  repository.AccountRepository
	evaluator service.ConsentEvaluator
	clock     service.Clock
	grace     time.Duration
	log       *zap.Logger
}

func NewSweeper(
	store repository.RevisionStore,
	accounts repository.AccountRepository,
	evaluator service.ConsentEvaluator,
	clock service.Clock,
	grace time.Duration,
	log *zap.Logger,
) *Sweeper {
	if clock == nil {
		clock = service.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		store:     store,
		accounts:  accounts,
		evaluator: evaluator,
		clock:     clock,
		grace:     grace,
		log:       log,
	}
}

// Process handles one task. Within the grace period it returns a *PostponeError.
// Missing agreements or accounts are discarded without error.
func (s *Sweeper) Process(ctx context.Context, task domain.ExpiryTask) (Outcome, error) {
	due := task.EnqueuedAt.Add(s.grace)
	if s.clock.Now().Before(due) {
		return OutcomePostponed, &PostponeError{Until: due}
	}

	agreement, err := s.store.GetAgreement(ctx, task.AgreementID)
	if err != nil {
		return "", fmt.Errorf("failed to get agreement: %w", err)
	}
	if agreement == nil {
		return OutcomeDiscarded, nil
	}

	account, err := s.accounts.GetByID(ctx, task.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return OutcomeDiscarded, nil
	}

	// Judged against the current default, which may have moved since the rejection
	compliant, err := s.evaluator.IsCompliant(ctx, task.UserID, task.AgreementID)
	if err != nil {
		return "", err
	}
	if compliant {
		return OutcomeCompliant, nil
	}

	if err := s.accounts.Deactivate(ctx, task.UserID); err != nil {
		return "", fmt.Errorf("failed to deactivate account: %w", err)
	}

	s.log.Info("account blocked for not accepting agreement",
		zap.String("user_id", task.UserID),
		zap.Int64("agreement_id", task.AgreementID),
		zap.Int64("rejected_revision_id", task.RevisionID),
		zap.Int64("current_revision_id", agreement.DefaultRevisionID),
	)
	return OutcomeDeactivated, nil
}
