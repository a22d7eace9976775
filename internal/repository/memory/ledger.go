package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository"
)

type triple struct {
	agreementID int64
	revisionID  int64
	userID      string
}

// SubmissionLedger holds one submission per (agreement, revision, user).
type SubmissionLedger struct {
	mu    sync.RWMutex
	rows  map[triple]*domain.Submission
	clock func() time.Time
}

var _ repository.SubmissionLedger = (*SubmissionLedger)(nil)

func NewSubmissionLedger(clock func() time.Time) *SubmissionLedger {
	if clock == nil {
		clock = time.Now
	}
	return &SubmissionLedger{rows: make(map[triple]*domain.Submission), clock: clock}
}

func (l *SubmissionLedger) RecordDecision(ctx context.Context, params domain.RecordDecisionParams) (*domain.Submission, error) {
	if !params.Decision.Valid() {
		return nil, fmt.Errorf("%w: decision %d", domain.ErrInvalidInput, params.Decision)
	}

	s := &domain.Submission{
		ID:          uuid.NewString(),
		Name:        domain.SubmissionName(params.UserID, params.AgreementID, params.RevisionID),
		AgreementID: params.AgreementID,
		RevisionID:  params.RevisionID,
		UserID:      params.UserID,
		Decision:    params.Decision,
		EmailHash:   params.EmailHash,
		CreatedAt:   l.clock(),
	}

	l.mu.Lock()
	l.rows[triple{params.AgreementID, params.RevisionID, params.UserID}] = s
	l.mu.Unlock()

	out := *s
	return &out, nil
}

func (l *SubmissionLedger) HasAccepted(ctx context.Context, agreementID, revisionID int64, userID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.rows[triple{agreementID, revisionID, userID}]
	return ok && s.Decision == domain.DecisionAccepted, nil
}

func (l *SubmissionLedger) CountForRevision(ctx context.Context, agreementID, revisionID int64) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for k := range l.rows {
		if k.agreementID == agreementID && k.revisionID == revisionID {
			n++
		}
	}
	return n, nil
}

func (l *SubmissionLedger) FindByTriple(ctx context.Context, userID string, agreementID, revisionID int64) (*domain.Submission, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.rows[triple{agreementID, revisionID, userID}]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (l *SubmissionLedger) ListForRevision(ctx context.Context, agreementID, revisionID int64) ([]*domain.Submission, error) {
	out := l.filter(func(k triple) bool {
		return k.agreementID == agreementID && k.revisionID == revisionID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *SubmissionLedger) ListByUser(ctx context.Context, userID string) ([]*domain.Submission, error) {
	out := l.filter(func(k triple) bool { return k.userID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// drop removes every row matched by match.
func (l *SubmissionLedger) drop(match func(triple) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k := range l.rows {
		if match(k) {
			delete(l.rows, k)
			n++
		}
	}
	return n
}

func (l *SubmissionLedger) filter(keep func(triple) bool) []*domain.Submission {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Submission
	for k, s := range l.rows {
		if keep(k) {
			c := *s
			out = append(out, &c)
		}
	}
	return out
}

// AccountRepository is a map-backed account table.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	clock    func() time.Time
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(clock func() time.Time) *AccountRepository {
	if clock == nil {
		clock = time.Now
	}
	return &AccountRepository{accounts: make(map[string]*domain.Account), clock: clock}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	return &c
}

func (r *AccountRepository) GetByID(ctx context.Context, userID string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[userID]
	if !ok {
		return nil, nil
	}
	return cloneAccount(a), nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (r *AccountRepository) Upsert(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	c := cloneAccount(account)
	if existing, ok := r.accounts[account.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.accounts[account.ID] = c
	return nil
}

func (r *AccountRepository) Deactivate(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s: %w", userID, domain.ErrNotFound)
	}
	a.Active = false
	a.UpdatedAt = r.clock()
	return nil
}

// UserDataRepository keeps rejection memos per user.
type UserDataRepository struct {
	mu       sync.Mutex
	rejected map[string]map[int64]int64
}

var _ repository.UserDataRepository = (*UserDataRepository)(nil)

func NewUserDataRepository() *UserDataRepository {
	return &UserDataRepository{rejected: make(map[string]map[int64]int64)}
}

func (r *UserDataRepository) RememberRejection(ctx context.Context, userID string, agreementID, revisionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.rejected[userID]
	if !ok {
		m = make(map[int64]int64)
		r.rejected[userID] = m
	}
	m[agreementID] = revisionID
	return nil
}

func (r *UserDataRepository) RejectedRevisions(ctx context.Context, userID string) (map[int64]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]int64, len(r.rejected[userID]))
	for aid, vid := range r.rejected[userID] {
		out[aid] = vid
	}
	return out, nil
}

func (r *UserDataRepository) ForgetRejection(ctx context.Context, userID string, agreementID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rejected[userID], agreementID)
	return nil
}

// SettingsRepository is a map of named values.
type SettingsRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ repository.SettingsRepository = (*SettingsRepository)(nil)

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{values: make(map[string]string)}
}

func (r *SettingsRepository) Get(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[name], nil
}

func (r *SettingsRepository) Set(ctx context.Context, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
	return nil
}
