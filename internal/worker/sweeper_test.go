package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/queue"
	"github.com/thatlq1812/user-agreement/internal/repository/memory"
	"github.com/thatlq1812/user-agreement/internal/service"
)

const grace = 7 * 24 * time.Hour

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	clock     *fakeClock
	store     *memory.RevisionStore
	ledger    *memory.SubmissionLedger
	accounts  *memory.AccountRepository
	queue     *queue.Memory
	sweeper   *Sweeper
	agreement *domain.Revision
}

func newFixture(t *testing.T, exemptRoles ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{clock: &fakeClock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}}
	f.store = memory.NewRevisionStore()
	f.ledger = memory.NewSubmissionLedger(f.clock.Now)
	f.accounts = memory.NewAccountRepository(f.clock.Now)
	f.queue = queue.NewMemory(f.clock.Now)

	rev, err := f.store.CreateAgreement(ctx, domain.CreateRevisionParams{
		Langcode:     "en",
		Translations: map[string]domain.Content{"en": {Title: "Terms"}},
		Published:    true,
		CreatedAt:    f.clock.Now(),
	})
	require.NoError(t, err)
	f.agreement = rev

	require.NoError(t, f.accounts.Upsert(ctx, &domain.Account{ID: "u1", Active: true}))

	evaluator := service.NewConsentEvaluator(f.store, f.ledger, service.NewRoleExemption(f.accounts, exemptRoles))
	f.sweeper = NewSweeper(f.store, f.accounts, evaluator, f.clock, grace, nil)
	return f
}

func (f *fixture) reject(t *testing.T) domain.ExpiryTask {
	t.Helper()
	_, err := f.ledger.RecordDecision(context.Background(), domain.RecordDecisionParams{
		AgreementID: f.agreement.AgreementID,
		RevisionID:  f.agreement.ID,
		UserID:      "u1",
		Decision:    domain.DecisionRejected,
	})
	require.NoError(t, err)
	return domain.ExpiryTask{
		AgreementID: f.agreement.AgreementID,
		RevisionID:  f.agreement.ID,
		UserID:      "u1",
		EnqueuedAt:  f.clock.Now(),
	}
}

func (f *fixture) active(t *testing.T) bool {
	t.Helper()
	a, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	return a.Active
}

func TestSweeper_GracePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.reject(t)

	f.clock.advance(3 * 24 * time.Hour)
	outcome, err := f.sweeper.Process(ctx, task)
	assert.True(t, errors.Is(err, domain.ErrPostponeRequested))
	assert.Equal(t, OutcomePostponed, outcome)
	assert.True(t, f.active(t))

	var pe *PostponeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, task.EnqueuedAt.Add(grace), pe.Until)

	f.clock.advance(5 * 24 * time.Hour)
	outcome, err = f.sweeper.Process(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeactivated, outcome)
	assert.False(t, f.active(t))
}

func TestSweeper_AcceptedInBetween(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.reject(t)

	_, err := f.ledger.RecordDecision(ctx, domain.RecordDecisionParams{
		AgreementID: f.agreement.AgreementID,
		RevisionID:  f.agreement.ID,
		UserID:      "u1",
		Decision:    domain.DecisionAccepted,
	})
	require.NoError(t, err)

	f.clock.advance(8 * 24 * time.Hour)
	outcome, err := f.sweeper.Process(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompliant, outcome)
	assert.True(t, f.active(t))
}

func TestSweeper_JudgesCurrentDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.reject(t)

	// Accepting the old revision does not help once a new one is the default
	_, err := f.ledger.RecordDecision(ctx, domain.RecordDecisionParams{
		AgreementID: f.agreement.AgreementID,
		RevisionID:  f.agreement.ID,
		UserID:      "u1",
		Decision:    domain.DecisionAccepted,
	})
	require.NoError(t, err)
	_, err = f.store.CreateRevision(ctx, f.agreement.AgreementID, domain.CreateRevisionParams{
		Langcode:     "en",
		Translations: map[string]domain.Content{"en": {Title: "Terms v2"}},
		Published:    true,
	}, true)
	require.NoError(t, err)

	f.clock.advance(8 * 24 * time.Hour)
	outcome, err := f.sweeper.Process(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeactivated, outcome)
}

func TestSweeper_DiscardsMissingAgreementOrUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.reject(t)
	f.clock.advance(8 * 24 * time.Hour)

	ghost := task
	ghost.UserID = "ghost"
	outcome, err := f.sweeper.Process(ctx, ghost)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)

	require.NoError(t, f.store.DeleteAgreement(ctx, f.agreement.AgreementID))
	outcome, err = f.sweeper.Process(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.True(t, f.active(t))
}

func TestSweeper_ExemptUserKeepsAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.RoleAdministrator)
	require.NoError(t, f.accounts.Upsert(ctx, &domain.Account{
		ID: "u1", Active: true, Roles: []string{domain.RoleAdministrator},
	}))
	task := f.reject(t)

	f.clock.advance(8 * 24 * time.Hour)
	outcome, err := f.sweeper.Process(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompliant, outcome)
	assert.True(t, f.active(t))
}

func TestRunner_PostponesThenDeactivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.reject(t)
	require.NoError(t, f.queue.Enqueue(ctx, domain.QueueExpiry, task))

	runner := NewRunner(f.queue, f.sweeper, f.clock, RunnerConfig{Batch: 10}, nil)

	f.clock.advance(3 * 24 * time.Hour)
	stats, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Claimed)
	assert.Equal(t, 1, stats.Processed[OutcomePostponed])

	// Not redelivered before the grace period is over
	f.clock.advance(24 * time.Hour)
	stats, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)

	f.clock.advance(4 * 24 * time.Hour)
	stats, err = runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed[OutcomeDeactivated])
	assert.False(t, f.active(t))

	n, err := f.queue.Len(ctx, domain.QueueExpiry)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunner_DropsUndecodableTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.queue.Enqueue(ctx, domain.QueueExpiry, "not a task"))

	runner := NewRunner(f.queue, f.sweeper, f.clock, RunnerConfig{}, nil)
	stats, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed[OutcomeDiscarded])

	n, err := f.queue.Len(ctx, domain.QueueExpiry)
	require.NoError(t, err)
	assert.Zero(t, n)
}
