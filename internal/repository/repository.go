package repository

import (
	"context"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

// RevisionStore persists agreement revisions and the single default pointer per agreement.
type RevisionStore interface {
	// Create agreement together with its first (default) revision
	CreateAgreement(ctx context.Context, params domain.CreateRevisionParams) (*domain.Revision, error)

	// Append a revision; makeDefault moves the default pointer in the same lock scope
	CreateRevision(ctx context.Context, agreementID int64, params domain.CreateRevisionParams, makeDefault bool) (*domain.Revision, error)

	// Default and latest revision lookups; ok is false when the agreement has no revisions
	GetDefaultRevisionID(ctx context.Context, agreementID int64) (int64, bool, error)
	GetLatestRevisionID(ctx context.Context, agreementID int64) (int64, bool, error)

	// Move the default pointer; ErrInvalidRevision when revisionID belongs elsewhere
	SetDefault(ctx context.Context, agreementID, revisionID int64) error

	// Remove a non-default revision and its submissions; ErrCannotDeleteDefault otherwise
	DeleteRevision(ctx context.Context, revisionID int64) error

	ListRevisionIDs(ctx context.Context, agreementID int64) ([]int64, error)
	ListRevisions(ctx context.Context, agreementID int64) ([]*domain.Revision, error)

	// GetRevision returns nil, nil when the revision does not exist
	GetRevision(ctx context.Context, revisionID int64) (*domain.Revision, error)

	// GetAgreement returns nil, nil when the agreement does not exist
	GetAgreement(ctx context.Context, agreementID int64) (*domain.Agreement, error)
	ListAgreements(ctx context.Context, publishedOnly bool) ([]*domain.Agreement, error)

	// DeleteAgreement removes the agreement with its revisions and submissions
	DeleteAgreement(ctx context.Context, agreementID int64) error

	// WithinAgreement runs fn as one atomic unit holding the agreement's lock.
	// fn may be re-run when a conflict is retried and must not keep outside state.
	WithinAgreement(ctx context.Context, agreementID int64, fn func(tx RevisionTx) error) error
}

// RevisionTx is the view of one agreement's revisions inside WithinAgreement.
type RevisionTx interface {
	// GetRevision returns nil, nil when the revision is not part of this agreement
	GetRevision(ctx context.Context, revisionID int64) (*domain.Revision, error)
	DefaultRevisionID(ctx context.Context) (int64, bool, error)
	LatestRevisionID(ctx context.Context) (int64, bool, error)
	InsertRevision(ctx context.Context, params domain.CreateRevisionParams, makeDefault bool) (*domain.Revision, error)
	// UpdateRevision rewrites fields of an existing revision in place (not IsDefault)
	UpdateRevision(ctx context.Context, rev *domain.Revision) error
	SetDefault(ctx context.Context, revisionID int64) error
	DeleteRevision(ctx context.Context, revisionID int64) error
}

// SubmissionLedger stores one decision per (agreement, revision, user).
type SubmissionLedger interface {
	// RecordDecision replaces any live submission for the same triple
	RecordDecision(ctx context.Context, params domain.RecordDecisionParams) (*domain.Submission, error)
	HasAccepted(ctx context.Context, agreementID, revisionID int64, userID string) (bool, error)
	CountForRevision(ctx context.Context, agreementID, revisionID int64) (int, error)

	// FindByTriple returns nil, nil when there is no submission
	FindByTriple(ctx context.Context, userID string, agreementID, revisionID int64) (*domain.Submission, error)
	ListForRevision(ctx context.Context, agreementID, revisionID int64) ([]*domain.Submission, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Submission, error)
}

// AccountRepository reads and deactivates site accounts.
type AccountRepository interface {
	// GetByID and GetByEmail return nil, nil when the account does not exist
	GetByID(ctx context.Context, userID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Upsert(ctx context.Context, account *domain.Account) error
	Deactivate(ctx context.Context, userID string) error
}

// UserDataRepository keeps user-scoped key-value state.
type UserDataRepository interface {
	RememberRejection(ctx context.Context, userID string, agreementID, revisionID int64) error
	RejectedRevisions(ctx context.Context, userID string) (map[int64]int64, error)
	ForgetRejection(ctx context.Context, userID string, agreementID int64) error
}

// SettingsRepository stores persisted configuration values.
type SettingsRepository interface {
	// Get returns "" when the setting was never stored
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// Setting names
const SettingRedirectURL = "redirect_url"
