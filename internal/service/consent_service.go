package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/ids"
	"github.com/thatlq1812/user-agreement/internal/metrics"
	"github.com/thatlq1812/user-agreement/internal/notify"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/internal/session"
	"github.com/thatlq1812/user-agreement/pkg/validator"
)

// LoginProvider resumes a suspended external login.
type LoginProvider interface {
	CompleteLogin(ctx context.Context, userID string, payload *domain.LoginPayload) error
}

// Dispatcher publishes decision events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.Event) error
}

// Service parameter naming the page to return to after login
const paramReturnTo = "returnto"

type ConsentService interface {
	// Start the flow for a login attempt; completes immediately when nothing is outstanding
	BeginLogin(ctx context.Context, userID string, payload *domain.LoginPayload) (*StepResult, error)

	// Start the flow for a page visit by a non-compliant user
	BeginVisit(ctx context.Context, userID, destination string) (*StepResult, error)

	// Current step of a pending session
	Current(ctx context.Context, sessionID, userID string) (*StepResult, error)

	// Record one decision and advance, finish or cancel the flow
	Decide(ctx context.Context, sessionID, userID string, agreementID, revisionID int64, decision domain.Decision) (*StepResult, error)

	// Abandon the flow; recorded decisions are kept
	Cancel(ctx context.Context, sessionID, userID string) (*StepResult, error)

	// Record a decision on the current default revision outside any flow
	DecideDirect(ctx context.Context, userID string, agreementID int64, decision domain.Decision) (*domain.Submission, error)
}

// ConsentConfig tunes the flow.
type ConsentConfig struct {
	SessionTTL     time.Duration
	DefaultLanding string
}

// StepResult tells the caller what to show next.
type StepResult struct {
	SessionID   string
	State       domain.FlowState
	Agreement   *domain.Agreement
	Revision    *domain.Revision
	Remaining   int
	RedirectURL string
	Completed   bool
	Cancelled   bool
}

type consentService struct {
	evaluator  ConsentEvaluator
	store      repository.RevisionStore
	ledger     repository.SubmissionLedger
	accounts   repository.AccountRepository
	sessions   session.Store
	dispatcher Dispatcher
	login      LoginProvider
	settings   SettingsService
	clock      Clock
	newID      func() string
	cfg        ConsentConfig
	log        *zap.Logger
}

// ConsentDeps groups the collaborators of the consent flow.
type ConsentDeps struct {
	Evaluator  ConsentEvaluator
	Store      repository.RevisionStore
	Ledger     repository.SubmissionLedger
	Accounts   repository.AccountRepository
	Sessions   session.Store
	Dispatcher Dispatcher
	Login      LoginProvider
	Settings   SettingsService
	Clock      Clock
	NewID      func() string
	Log        *zap.Logger
}

func NewConsentService(deps ConsentDeps, cfg ConsentConfig) ConsentService {
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.NewID == nil {
		deps.NewID = ids.New
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.DefaultLanding == "" {
		cfg.DefaultLanding = "/"
	}
	return &consentService{
		evaluator:  deps.Evaluator,
		store:      deps.Store,
		ledger:     deps.Ledger,
		accounts:   deps.Accounts,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		login:      deps.Login,
		settings:   deps.Settings,
		clock:      deps.Clock,
		newID:      deps.NewID,
		cfg:        cfg,
		log:        deps.Log,
	}
}

func (s *consentService) BeginLogin(ctx context.Context, userID string, payload *domain.LoginPayload) (*StepResult, error) {
	if userID == "" || payload == nil {
		return nil, fmt.Errorf("%w: user id and login payload are required", domain.ErrInvalidInput)
	}
	if _, err := s.activeAccount(ctx, userID); err != nil {
		return nil, err
	}

	ps := &domain.PendingSession{
		Kind:    domain.FlowLogin,
		UserID:  userID,
		Payload: payload,
	}
	if email := payload.Email(); email != "" {
		ps.EmailHash = domain.HashEmail(email)
	}
	return s.begin(ctx, ps)
}

func (s *consentService) BeginVisit(ctx context.Context, userID, destination string) (*StepResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if destination != "" {
		if err := validator.ValidateLocalPath(destination); err != nil {
			return nil, fmt.Errorf("%w: destination: %v", domain.ErrInvalidInput, err)
		}
	}

	ps := &domain.PendingSession{
		Kind:        domain.FlowVisit,
		UserID:      userID,
		Destination: destination,
	}
	account, err := s.activeAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account != nil && account.Email != "" {
		ps.EmailHash = domain.HashEmail(account.Email)
	}
	return s.begin(ctx, ps)
}

func (s *consentService) begin(ctx context.Context, ps *domain.PendingSession) (*StepResult, error) {
	outstanding, err := s.evaluator.OutstandingPublished(ctx, ps.UserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ps.ID = s.newID()
	ps.CreatedAt = now
	ps.UpdatedAt = now

	if len(outstanding) == 0 {
		return s.finish(ctx, ps, false)
	}

	ps.State = domain.FlowCollecting
	if err := s.sessions.Save(ctx, ps, s.cfg.SessionTTL); err != nil {
		return nil, err
	}

	metrics.ObserveSession("started")
	s.log.Info("consent flow started",
		zap.String("session_id", ps.ID),
		zap.String("kind", string(ps.Kind)),
		zap.String("user_id", ps.UserID),
		zap.Int("outstanding", len(outstanding)),
	)
	return s.present(ctx, ps, outstanding)
}

// load returns the caller's pending session or ErrSessionExpired.
func (s *consentService) load(ctx context.Context, sessionID, userID string) (*domain.PendingSession, error) {
	ps, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		metrics.ObserveSession("expired")
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionExpired)
	}
	if ps.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrForbidden)
	}
	return ps, nil
}

func (s *consentService) Current(ctx context.Context, sessionID, userID string) (*StepResult, error) {
	ps, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, ps)
}

func (s *consentService) Decide(ctx context.Context, sessionID, userID string, agreementID, revisionID int64, decision domain.Decision) (*StepResult, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: decision %d", domain.ErrInvalidInput, decision)
	}

	ps, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	agreement, err := s.agreementRevision(ctx, agreementID, revisionID)
	if err != nil {
		return nil, err
	}

	sub, err := s.record(ctx, ps.UserID, agreementID, revisionID, decision, ps.EmailHash)
	if err != nil {
		return nil, err
	}

	if decision == domain.DecisionRejected {
		// A single rejection cancels the whole flow and the pending login with it
		delErr := s.sessions.Delete(ctx, ps.ID)
		s.announce(ctx, notify.EventRejected, agreement, sub)
		if delErr != nil {
			return nil, delErr
		}

		metrics.ObserveSession("cancelled")
		s.log.Info("consent flow cancelled by rejection",
			zap.String("session_id", ps.ID),
			zap.String("user_id", ps.UserID),
			zap.Int64("agreement_id", agreementID),
		)
		return &StepResult{
			SessionID:   ps.ID,
			State:       domain.FlowIdle,
			RedirectURL: s.cfg.DefaultLanding,
			Cancelled:   true,
		}, nil
	}

	ps.Collect(agreementID, revisionID)
	ps.UpdatedAt = s.clock.Now()
	return s.advance(ctx, ps)
}

func (s *consentService) Cancel(ctx context.Context, sessionID, userID string) (*StepResult, error) {
	ps, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Delete(ctx, ps.ID); err != nil {
		return nil, err
	}

	metrics.ObserveSession("cancelled")
	return &StepResult{
		SessionID:   ps.ID,
		State:       domain.FlowIdle,
		RedirectURL: s.cfg.DefaultLanding,
		Cancelled:   true,
	}, nil
}

func (s *consentService) DecideDirect(ctx context.Context, userID string, agreementID int64, decision domain.Decision) (*domain.Submission, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: decision %d", domain.ErrInvalidInput, decision)
	}

	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	if agreement == nil {
		return nil, fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
	}

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	var emailHash string
	if account != nil && account.Email != "" {
		emailHash = domain.HashEmail(account.Email)
	}

	sub, err := s.record(ctx, userID, agreementID, agreement.DefaultRevisionID, decision, emailHash)
	if err != nil {
		return nil, err
	}
	if err := s.dispatch(ctx, notify.KindFor(decision), agreement, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// advance re-runs the evaluator and either presents the next agreement or finishes.
func (s *consentService) advance(ctx context.Context, ps *domain.PendingSession) (*StepResult, error) {
	outstanding, err := s.evaluator.OutstandingPublished(ctx, ps.UserID)
	if err != nil {
		return nil, err
	}
	if len(outstanding) == 0 {
		return s.finish(ctx, ps, true)
	}

	if err := s.sessions.Save(ctx, ps, s.cfg.SessionTTL); err != nil {
		return nil, err
	}
	return s.present(ctx, ps, outstanding)
}

func (s *consentService) present(ctx context.Context, ps *domain.PendingSession, outstanding []*domain.Agreement) (*StepResult, error) {
	next := outstanding[0]
	rev, err := s.store.GetRevision(ctx, next.DefaultRevisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load revision: %w", err)
	}
	return &StepResult{
		SessionID: ps.ID,
		State:     domain.FlowCollecting,
		Agreement: next,
		Revision:  rev,
		Remaining: len(outstanding),
	}, nil
}

// finish completes the external action, announces the collected acceptances and
// clears the session. stored is false when the session was never persisted.
// Once the session is taken nothing after the login can fail the finish.
func (s *consentService) finish(ctx context.Context, ps *domain.PendingSession, stored bool) (*StepResult, error) {
	ps.State = domain.FlowFinishing

	if stored {
		taken, err := s.sessions.Take(ctx, ps.ID)
		if err != nil {
			return nil, err
		}
		if !taken {
			// Another request finished or cancelled it first
			return nil, fmt.Errorf("session %s: %w", ps.ID, domain.ErrSessionExpired)
		}
		if _, err := s.activeAccount(ctx, ps.UserID); err != nil {
			metrics.ObserveSession("cancelled")
			return nil, err
		}
	}

	if ps.Kind == domain.FlowLogin {
		if err := s.login.CompleteLogin(ctx, ps.UserID, ps.Payload); err != nil {
			return nil, fmt.Errorf("failed to complete login: %w", err)
		}
	}

	for _, c := range ps.Accepted {
		agreement, err := s.store.GetAgreement(ctx, c.AgreementID)
		if err != nil {
			s.log.Error("failed to load accepted agreement", zap.Int64("agreement_id", c.AgreementID), zap.Error(err))
			continue
		}
		sub, err := s.ledger.FindByTriple(ctx, ps.UserID, c.AgreementID, c.RevisionID)
		if err != nil {
			s.log.Error("failed to load submission", zap.Int64("agreement_id", c.AgreementID), zap.Error(err))
			continue
		}
		if agreement == nil || sub == nil {
			// Deleted while the session was open
			continue
		}
		s.announce(ctx, notify.EventAccepted, agreement, sub)
	}

	redirect := s.redirectFor(ctx, ps)

	metrics.ObserveSession("completed")
	s.log.Info("consent flow completed",
		zap.String("session_id", ps.ID),
		zap.String("user_id", ps.UserID),
		zap.Int("accepted", len(ps.Accepted)),
	)
	return &StepResult{
		SessionID:   ps.ID,
		State:       domain.FlowIdle,
		RedirectURL: redirect,
		Completed:   true,
	}, nil
}

// redirectFor picks the configured URL, then the original return path, then the landing page.
func (s *consentService) redirectFor(ctx context.Context, ps *domain.PendingSession) string {
	configured, err := s.settings.RedirectURL(ctx)
	if err != nil {
		s.log.Warn("failed to read redirect setting", zap.Error(err))
	}
	if configured != "" {
		return configured
	}

	switch {
	case ps.Kind == domain.FlowLogin && ps.Payload != nil && ps.Payload.ServiceParameters[paramReturnTo] != "":
		return ps.Payload.ServiceParameters[paramReturnTo]
	case ps.Destination != "":
		return ps.Destination
	}
	return s.cfg.DefaultLanding
}

// activeAccount loads the account and refuses a deactivated one. Unknown accounts pass.
func (s *consentService) activeAccount(ctx context.Context, userID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account != nil && !account.Active {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrAccountBlocked)
	}
	return account, nil
}

// agreementRevision checks that revisionID belongs to agreementID.
func (s *consentService) agreementRevision(ctx context.Context, agreementID, revisionID int64) (*domain.Agreement, error) {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	if agreement == nil {
		return nil, fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
	}

	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	if rev == nil || rev.AgreementID != agreementID {
		return nil, fmt.Errorf("revision %d of agreement %d: %w", revisionID, agreementID, domain.ErrInvalidRevision)
	}
	return agreement, nil
}

func (s *consentService) record(ctx context.Context, userID string, agreementID, revisionID int64, decision domain.Decision, emailHash string) (*domain.Submission, error) {
	params := domain.RecordDecisionParams{
		AgreementID: agreementID,
		RevisionID:  revisionID,
		UserID:      userID,
		Decision:    decision,
	}
	if emailHash != "" {
		params.EmailHash = &emailHash
	}

	sub, err := s.ledger.RecordDecision(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}
	metrics.ObserveDecision(decision.String())
	return sub, nil
}

func (s *consentService) dispatch(ctx context.Context, kind notify.EventKind, agreement *domain.Agreement, sub *domain.Submission) error {
	account, err := s.accounts.GetByID(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	err = s.dispatcher.Dispatch(ctx, notify.Event{
		Kind:       kind,
		Agreement:  agreement,
		Submission: sub,
		Account:    account,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch %s: %w", kind, err)
	}
	return nil
}

// announce dispatches an event for a decision that is already recorded. Subscriber
// failures are logged, never returned, so they cannot strand the flow.
func (s *consentService) announce(ctx context.Context, kind notify.EventKind, agreement *domain.Agreement, sub *domain.Submission) {
	if err := s.dispatch(ctx, kind, agreement, sub); err != nil {
		s.log.Error("decision notification failed",
			zap.String("kind", string(kind)),
			zap.String("user_id", sub.UserID),
			zap.Int64("agreement_id", agreement.ID),
			zap.Error(err),
		)
	}
}
