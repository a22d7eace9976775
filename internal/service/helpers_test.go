package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/notify"
	"github.com/thatlq1812/user-agreement/internal/queue"
	"github.com/thatlq1812/user-agreement/internal/repository/memory"
	"github.com/thatlq1812/user-agreement/internal/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeLogin struct {
	mu       sync.Mutex
	calls    int
	userID   string
	payload  *domain.LoginPayload
	failWith error
}

func (f *fakeLogin) CompleteLogin(ctx context.Context, userID string, payload *domain.LoginPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.userID = userID
	f.payload = payload
	return f.failWith
}

type recorder struct {
	events []notify.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Handle(ctx context.Context, ev notify.Event) error {
	r.events = append(r.events, ev)
	return nil
}

// mailer stands in for a subscriber whose backend can go down.
type mailer struct {
	failWith error
}

func (m *mailer) Name() string { return "mail" }

func (m *mailer) Handle(ctx context.Context, ev notify.Event) error {
	return m.failWith
}

func (r *recorder) kinds() []notify.EventKind {
	out := make([]notify.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// testEnv wires every service over the in-memory drivers.
type testEnv struct {
	clock     *fakeClock
	store     *memory.RevisionStore
	ledger    *memory.SubmissionLedger
	accounts  *memory.AccountRepository
	userData  *memory.UserDataRepository
	queue     *queue.Memory
	sessions  session.Store
	login     *fakeLogin
	events    *recorder
	mailer    *mailer
	settings  SettingsService
	evaluator ConsentEvaluator
	agreement AgreementService
	consent   ConsentService
}

func newTestEnv(t *testing.T, exemptRoles ...string) *testEnv {
	t.Helper()

	env := &testEnv{clock: newFakeClock()}
	env.ledger = memory.NewSubmissionLedger(env.clock.Now)
	env.store = memory.NewRevisionStore().CascadeTo(env.ledger)
	env.accounts = memory.NewAccountRepository(env.clock.Now)
	env.userData = memory.NewUserDataRepository()
	env.queue = queue.NewMemory(env.clock.Now)
	env.sessions = session.NewMemory()
	env.login = &fakeLogin{}
	env.events = &recorder{}
	env.mailer = &mailer{}
	env.settings = NewSettingsService(memory.NewSettingsRepository())

	env.evaluator = NewConsentEvaluator(env.store, env.ledger, NewRoleExemption(env.accounts, exemptRoles))
	env.agreement = NewAgreementService(env.store, env.ledger, env.clock, zap.NewNop())

	bus := notify.NewBus(zap.NewNop(),
		env.events,
		env.mailer,
		notify.NewRejectionSubscriber(env.userData, env.queue, env.clock.Now),
	)

	n := 0
	env.consent = NewConsentService(ConsentDeps{
		Evaluator:  env.evaluator,
		Store:      env.store,
		Ledger:     env.ledger,
		Accounts:   env.accounts,
		Sessions:   env.sessions,
		Dispatcher: bus,
		Login:      env.login,
		Settings:   env.settings,
		Clock:      env.clock,
		NewID: func() string {
			n++
			return "session-" + strconv.Itoa(n)
		},
	}, ConsentConfig{DefaultLanding: "/home"})

	t.Cleanup(func() { _ = env.sessions.Close() })
	return env
}

func (e *testEnv) user(t *testing.T, id string, roles ...string) {
	t.Helper()
	require.NoError(t, e.accounts.Upsert(context.Background(), &domain.Account{
		ID:     id,
		Email:  id + "@example.com",
		Roles:  roles,
		Active: true,
	}))
}

func (e *testEnv) create(t *testing.T, title string, published bool) *domain.Revision {
	t.Helper()
	rev, err := e.agreement.Create(context.Background(), CreateAgreementParams{
		Langcode:  "en",
		Title:     title,
		Body:      title + " body",
		Published: published,
		Actor:     "admin",
	})
	require.NoError(t, err)
	return rev
}

// draft adds an unpublished revision on top of the agreement.
func (e *testEnv) draft(t *testing.T, agreementID int64, title string) *domain.Revision {
	t.Helper()
	published := false
	rev, err := e.agreement.Edit(context.Background(), EditAgreementParams{
		AgreementID: agreementID,
		Title:       title,
		Body:        title + " body",
		Published:   &published,
		NewRevision: true,
		Actor:       "admin",
	})
	require.NoError(t, err)
	return rev
}

func (e *testEnv) accept(t *testing.T, userID string, rev *domain.Revision) {
	t.Helper()
	_, err := e.ledger.RecordDecision(context.Background(), domain.RecordDecisionParams{
		AgreementID: rev.AgreementID,
		RevisionID:  rev.ID,
		UserID:      userID,
		Decision:    domain.DecisionAccepted,
	})
	require.NoError(t, err)
}

func (e *testEnv) defaultOf(t *testing.T, agreementID int64) int64 {
	t.Helper()
	vid, ok, err := e.store.GetDefaultRevisionID(context.Background(), agreementID)
	require.NoError(t, err)
	require.True(t, ok)
	return vid
}
