package service

import (
	"context"
	"fmt"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository"
)

// ExemptionChecker decides whether a user bypasses agreements entirely.
type ExemptionChecker interface {
	IsExempt(ctx context.Context, userID string) (bool, error)
}

// RoleExemption exempts accounts holding any of the configured roles.
type RoleExemption struct {
	accounts repository.AccountRepository
	roles    []string
}

func NewRoleExemption(accounts repository.AccountRepository, roles []string) *RoleExemption {
	return &RoleExemption{accounts: accounts, roles: roles}
}

func (e *RoleExemption) IsExempt(ctx context.Context, userID string) (bool, error) {
	if len(e.roles) == 0 {
		return false, nil
	}
	account, err := e.accounts.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return false, nil
	}
	return account.HasRole(e.roles...), nil
}

type ConsentEvaluator interface {
	// Agreements from the given list the user has not accepted in their current default revision
	Outstanding(ctx context.Context, userID string, agreements []*domain.Agreement) ([]*domain.Agreement, error)

	// Outstanding evaluated against every published agreement
	OutstandingPublished(ctx context.Context, userID string) ([]*domain.Agreement, error)

	// Whether the user accepted the current default revision of one agreement
	IsCompliant(ctx context.Context, userID string, agreementID int64) (bool, error)
}

type consentEvaluator struct {
	store     repository.RevisionStore
	ledger    repository.SubmissionLedger
	exemption ExemptionChecker
}

func NewConsentEvaluator(store repository.RevisionStore, ledger repository.SubmissionLedger, exemption ExemptionChecker) ConsentEvaluator {
	return &consentEvaluator{store: store, ledger: ledger, exemption: exemption}
}

func (e *consentEvaluator) isExempt(ctx context.Context, userID string) (bool, error) {
	if e.exemption == nil {
		return false, nil
	}
	exempt, err := e.exemption.IsExempt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check exemption: %w", err)
	}
	return exempt, nil
}

func (e *consentEvaluator) Outstanding(ctx context.Context, userID string, agreements []*domain.Agreement) ([]*domain.Agreement, error) {
	exempt, err := e.isExempt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exempt {
		return []*domain.Agreement{}, nil
	}
	return e.notAccepted(ctx, userID, agreements)
}

func (e *consentEvaluator) OutstandingPublished(ctx context.Context, userID string) ([]*domain.Agreement, error) {
	exempt, err := e.isExempt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exempt {
		return []*domain.Agreement{}, nil
	}

	published, err := e.store.ListAgreements(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	return e.notAccepted(ctx, userID, published)
}

// notAccepted keeps the agreements whose default revision the user has not accepted.
func (e *consentEvaluator) notAccepted(ctx context.Context, userID string, agreements []*domain.Agreement) ([]*domain.Agreement, error) {
	outstanding := make([]*domain.Agreement, 0, len(agreements))
	for _, a := range agreements {
		accepted, err := e.acceptedDefault(ctx, userID, a.ID)
		if err != nil {
			return nil, err
		}
		if !accepted {
			outstanding = append(outstanding, a)
		}
	}
	return outstanding, nil
}

func (e *consentEvaluator) IsCompliant(ctx context.Context, userID string, agreementID int64) (bool, error) {
	exempt, err := e.isExempt(ctx, userID)
	if err != nil {
		return false, err
	}
	if exempt {
		return true, nil
	}
	return e.acceptedDefault(ctx, userID, agreementID)
}

// acceptedDefault is true when there is nothing to accept: an agreement without
// a default revision never blocks anyone.
func (e *consentEvaluator) acceptedDefault(ctx context.Context, userID string, agreementID int64) (bool, error) {
	vid, ok, err := e.store.GetDefaultRevisionID(ctx, agreementID)
	if err != nil {
		return false, fmt.Errorf("failed to get default revision: %w", err)
	}
	if !ok {
		return true, nil
	}

	accepted, err := e.ledger.HasAccepted(ctx, agreementID, vid, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check acceptance: %w", err)
	}
	return accepted, nil
}
