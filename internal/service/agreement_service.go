package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/metrics"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/pkg/validator"
)

const logTimeLayout = "2006-01-02 15:04"

type AgreementService interface {
	Create(ctx context.Context, params CreateAgreementParams) (*domain.Revision, error)
	Get(ctx context.Context, agreementID int64) (*domain.Agreement, error)
	List(ctx context.Context, publishedOnly bool) ([]*domain.Agreement, error)
	Edit(ctx context.Context, params EditAgreementParams) (*domain.Revision, error)
	Delete(ctx context.Context, agreementID int64, actor string) error

	// Revision history
	GetRevision(ctx context.Context, agreementID, revisionID int64) (*domain.Revision, error)
	Revisions(ctx context.Context, agreementID int64) ([]domain.RevisionSummary, error)

	// Default pointer transitions
	Publish(ctx context.Context, agreementID, revisionID int64, actor string) (*domain.Revision, error)
	Revert(ctx context.Context, agreementID, revisionID int64, actor string) (*domain.Revision, error)
	RevertTranslation(ctx context.Context, params RevertTranslationParams) (*domain.Revision, error)
	SetActive(ctx context.Context, agreementID, revisionID int64, actor string) (*domain.Revision, error)
	DeleteRevision(ctx context.Context, agreementID, revisionID int64, actor string) error

	// Submissions of one revision; revisionID 0 selects the current default
	Submissions(ctx context.Context, agreementID, revisionID int64) ([]*domain.Submission, int, error)
}

type agreementService struct {
	store  repository.RevisionStore
	ledger repository.SubmissionLedger
	clock  Clock
	log    *zap.Logger
}

func NewAgreementService(store repository.RevisionStore, ledger repository.SubmissionLedger, clock Clock, log *zap.Logger) AgreementService {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &agreementService{store: store, ledger: ledger, clock: clock, log: log}
}

// CreateAgreementParams input for a new agreement
type CreateAgreementParams struct {
	Langcode          string
	Title             string
	Body              string
	SupplementaryInfo string
	// Optional additional languages
	Translations map[string]domain.Content
	Published    bool
	OwnerID      string
	Log          string
	Actor        string
}

// EditAgreementParams input for editing the latest revision
type EditAgreementParams struct {
	AgreementID int64
	// Revision the editor loaded; 0 means the latest. Anything else but the latest is rejected.
	RevisionID int64
	// Language being edited; defaults to the revision's own langcode
	Langcode          string
	Title             string
	Body              string
	SupplementaryInfo string
	Published         *bool
	NewRevision       bool
	Log               string
	Actor             string
}

// RevertTranslationParams input for reverting one language
type RevertTranslationParams struct {
	AgreementID int64
	RevisionID  int64
	Langcode    string
	// Also copy the untranslatable fields (owner, default language)
	RevertShared bool
	Actor        string
}

func validateContent(langcode, title, logMsg string) error {
	if err := validator.ValidateLangcode(langcode); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := validator.ValidateTitle(title); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := validator.ValidateLogMessage(logMsg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func (s *agreementService) Create(ctx context.Context, params CreateAgreementParams) (*domain.Revision, error) {
	if err := validateContent(params.Langcode, params.Title, params.Log); err != nil {
		return nil, err
	}

	translations := make(map[string]domain.Content, len(params.Translations)+1)
	for lang, content := range params.Translations {
		if err := validateContent(lang, content.Title, ""); err != nil {
			return nil, err
		}
		translations[lang] = content
	}
	translations[params.Langcode] = domain.Content{
		Title:             params.Title,
		Body:              params.Body,
		SupplementaryInfo: params.SupplementaryInfo,
	}

	rev, err := s.store.CreateAgreement(ctx, domain.CreateRevisionParams{
		Langcode:     params.Langcode,
		Translations: translations,
		OwnerID:      params.OwnerID,
		Published:    params.Published,
		Log:          params.Log,
		AuthoredBy:   params.Actor,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}

	s.log.Info("agreement created",
		zap.Int64("agreement_id", rev.AgreementID),
		zap.Int64("revision_id", rev.ID),
		zap.String("actor", params.Actor),
	)
	return rev, nil
}

func (s *agreementService) Get(ctx context.Context, agreementID int64) (*domain.Agreement, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	if a == nil {
		return nil, fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
	}
	return a, nil
}

func (s *agreementService) List(ctx context.Context, publishedOnly bool) ([]*domain.Agreement, error) {
	agreements, err := s.store.ListAgreements(ctx, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	return agreements, nil
}

func (s *agreementService) Edit(ctx context.Context, params EditAgreementParams) (*domain.Revision, error) {
	if err := validator.ValidateLogMessage(params.Log); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var result *domain.Revision
	err := s.store.WithinAgreement(ctx, params.AgreementID, func(tx repository.RevisionTx) error {
		latestID, ok, err := tx.LatestRevisionID(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("agreement %d has no revisions: %w", params.AgreementID, domain.ErrNotFound)
		}
		if params.RevisionID != 0 && params.RevisionID != latestID {
			return fmt.Errorf("revision %d is not the latest: %w", params.RevisionID, domain.ErrRevisionLocked)
		}

		base, err := requireRevision(ctx, tx, params.AgreementID, latestID)
		if err != nil {
			return err
		}

		langcode := params.Langcode
		if langcode == "" {
			langcode = base.Langcode
		}
		if err := validateContent(langcode, params.Title, params.Log); err != nil {
			return err
		}

		updated := base.Clone()
		updated.Translations[langcode] = domain.Content{
			Title:             params.Title,
			Body:              params.Body,
			SupplementaryInfo: params.SupplementaryInfo,
		}
		if params.Published != nil {
			updated.Published = *params.Published
		}
		updated.Log = params.Log
		updated.AuthoredBy = params.Actor
		updated.CreatedAt = s.clock.Now()

		if params.NewRevision {
			// An unpublished edit is saved as a draft and keeps the previous default
			p := domain.ParamsFromRevision(updated)
			p.Log, p.AuthoredBy, p.CreatedAt = updated.Log, updated.AuthoredBy, updated.CreatedAt
			rev, err := tx.InsertRevision(ctx, p, updated.Published)
			if err != nil {
				return err
			}
			result = rev
			return nil
		}

		if base.IsDefault && base.Published {
			return fmt.Errorf("revision %d is the published default: %w", base.ID, domain.ErrRevisionLocked)
		}
		if err := tx.UpdateRevision(ctx, updated); err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition(domain.OperationEdit)
	s.log.Info("agreement edited",
		zap.Int64("agreement_id", params.AgreementID),
		zap.Int64("revision_id", result.ID),
		zap.Bool("new_revision", params.NewRevision),
		zap.String("actor", params.Actor),
	)
	return result, nil
}

func (s *agreementService) Delete(ctx context.Context, agreementID int64, actor string) error {
	if _, err := s.Get(ctx, agreementID); err != nil {
		return err
	}
	if err := s.store.DeleteAgreement(ctx, agreementID); err != nil {
		return err
	}

	s.log.Info("agreement deleted", zap.Int64("agreement_id", agreementID), zap.String("actor", actor))
	return nil
}

func (s *agreementService) GetRevision(ctx context.Context, agreementID, revisionID int64) (*domain.Revision, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	if rev == nil {
		return nil, fmt.Errorf("revision %d: %w", revisionID, domain.ErrNotFound)
	}
	if rev.AgreementID != agreementID {
		return nil, fmt.Errorf("revision %d of agreement %d: %w", revisionID, agreementID, domain.ErrInvalidRevision)
	}
	return rev, nil
}

func (s *agreementService) Revisions(ctx context.Context, agreementID int64) ([]domain.RevisionSummary, error) {
	if _, err := s.Get(ctx, agreementID); err != nil {
		return nil, err
	}

	revs, err := s.store.ListRevisions(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	if len(revs) == 0 {
		return []domain.RevisionSummary{}, nil
	}

	var defaultID int64
	for _, r := range revs {
		if r.IsDefault {
			defaultID = r.ID
		}
	}
	latestID := revs[len(revs)-1].ID

	summaries := make([]domain.RevisionSummary, 0, len(revs))
	for _, r := range revs {
		count, err := s.ledger.CountForRevision(ctx, agreementID, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count submissions: %w", err)
		}
		summaries = append(summaries, domain.RevisionSummary{
			Revision:        r,
			State:           stateOf(r),
			SubmissionCount: count,
			Operations:      operationsFor(r, defaultID, latestID),
		})
	}

	// Newest first
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Revision.ID > summaries[j].Revision.ID
	})
	return summaries, nil
}

func stateOf(r *domain.Revision) domain.RevisionState {
	if r.IsDefault {
		return domain.RevisionDefault
	}
	return domain.RevisionDraft
}

func operationsFor(r *domain.Revision, defaultID, latestID int64) []string {
	ops := []string{}
	switch {
	case r.IsDefault:
		if !r.Published {
			ops = append(ops, domain.OperationSetActive)
		}
	case r.ID > defaultID:
		ops = append(ops, domain.OperationPublish, domain.OperationSetActive)
	default:
		ops = append(ops, domain.OperationRevert, domain.OperationSetActive)
	}
	if r.ID == latestID {
		ops = append(ops, domain.OperationEdit)
	}
	if !r.IsDefault {
		ops = append(ops, domain.OperationDelete)
	}
	return ops
}

// stamp records who performed a transition and when.
func (s *agreementService) stamp(rev *domain.Revision, logMsg, actor string) {
	rev.Log = logMsg
	rev.AuthoredBy = actor
	rev.CreatedAt = s.clock.Now()
}

func (s *agreementService) Publish(ctx context.Context, agreementID, revisionID int64, actor string) (*domain.Revision, error) {
	var result *domain.Revision
	changed := false
	err := s.store.WithinAgreement(ctx, agreementID, func(tx repository.RevisionTx) error {
		changed = false
		rev, err := requireRevision(ctx, tx, agreementID, revisionID)
		if err != nil {
			return err
		}
		if rev.IsDefault {
			result = rev
			return nil
		}

		// The row itself becomes default again; no new revision id
		if err := tx.SetDefault(ctx, rev.ID); err != nil {
			return err
		}
		s.stamp(rev, fmt.Sprintf("Published revision %d.", rev.ID), actor)
		if err := tx.UpdateRevision(ctx, rev); err != nil {
			return err
		}
		rev.IsDefault = true
		result, changed = rev, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.transitioned(domain.OperationPublish, result, actor)
	}
	return result, nil
}

func (s *agreementService) Revert(ctx context.Context, agreementID, revisionID int64, actor string) (*domain.Revision, error) {
	var result *domain.Revision
	changed := false
	err := s.store.WithinAgreement(ctx, agreementID, func(tx repository.RevisionTx) error {
		changed = false
		rev, err := requireRevision(ctx, tx, agreementID, revisionID)
		if err != nil {
			return err
		}
		if rev.IsDefault {
			result = rev
			return nil
		}

		p := domain.ParamsFromRevision(rev)
		p.Published = true
		p.Log = fmt.Sprintf("Copy of the revision from %s.", rev.CreatedAt.Format(logTimeLayout))
		p.AuthoredBy = actor
		p.CreatedAt = s.clock.Now()

		fork, err := tx.InsertRevision(ctx, p, true)
		if err != nil {
			return err
		}
		result, changed = fork, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.transitioned(domain.OperationRevert, result, actor)
	}
	return result, nil
}

func (s *agreementService) RevertTranslation(ctx context.Context, params RevertTranslationParams) (*domain.Revision, error) {
	if err := validator.ValidateLangcode(params.Langcode); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var result *domain.Revision
	err := s.store.WithinAgreement(ctx, params.AgreementID, func(tx repository.RevisionTx) error {
		source, err := requireRevision(ctx, tx, params.AgreementID, params.RevisionID)
		if err != nil {
			return err
		}
		content, ok := source.Translations[params.Langcode]
		if !ok {
			return fmt.Errorf("%w: revision %d has no %q translation", domain.ErrInvalidInput, source.ID, params.Langcode)
		}

		latestID, _, err := tx.LatestRevisionID(ctx)
		if err != nil {
			return err
		}
		latest, err := requireRevision(ctx, tx, params.AgreementID, latestID)
		if err != nil {
			return err
		}

		p := domain.ParamsFromRevision(latest)
		p.Translations[params.Langcode] = content
		if params.RevertShared {
			p.OwnerID = source.OwnerID
			p.Langcode = source.Langcode
			if _, ok := p.Translations[p.Langcode]; !ok {
				p.Translations[p.Langcode] = source.Translations[source.Langcode]
			}
		}
		p.Published = true
		p.Log = fmt.Sprintf("Copy of the %s translation of the revision from %s.",
			strings.ToUpper(params.Langcode), source.CreatedAt.Format(logTimeLayout))
		p.AuthoredBy = params.Actor
		p.CreatedAt = s.clock.Now()

		fork, err := tx.InsertRevision(ctx, p, true)
		if err != nil {
			return err
		}
		result = fork
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(domain.OperationRevert, result, params.Actor)
	return result, nil
}

func (s *agreementService) SetActive(ctx context.Context, agreementID, revisionID int64, actor string) (*domain.Revision, error) {
	var result *domain.Revision
	changed := false
	err := s.store.WithinAgreement(ctx, agreementID, func(tx repository.RevisionTx) error {
		changed = false
		rev, err := requireRevision(ctx, tx, agreementID, revisionID)
		if err != nil {
			return err
		}
		if rev.IsDefault && rev.Published {
			result = rev
			return nil
		}

		if !rev.IsDefault {
			if err := tx.SetDefault(ctx, rev.ID); err != nil {
				return err
			}
		}
		rev.Published = true
		s.stamp(rev, fmt.Sprintf("Set as active on %s.", s.clock.Now().Format(logTimeLayout)), actor)
		if err := tx.UpdateRevision(ctx, rev); err != nil {
			return err
		}
		rev.IsDefault = true
		result, changed = rev, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.transitioned(domain.OperationSetActive, result, actor)
	}
	return result, nil
}

func (s *agreementService) DeleteRevision(ctx context.Context, agreementID, revisionID int64, actor string) error {
	err := s.store.WithinAgreement(ctx, agreementID, func(tx repository.RevisionTx) error {
		return tx.DeleteRevision(ctx, revisionID)
	})
	if err != nil {
		return err
	}

	metrics.ObserveTransition(domain.OperationDelete)
	s.log.Info("revision deleted",
		zap.Int64("agreement_id", agreementID),
		zap.Int64("revision_id", revisionID),
		zap.String("actor", actor),
	)
	return nil
}

func (s *agreementService) Submissions(ctx context.Context, agreementID, revisionID int64) ([]*domain.Submission, int, error) {
	if revisionID == 0 {
		vid, ok, err := s.store.GetDefaultRevisionID(ctx, agreementID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to get default revision: %w", err)
		}
		if !ok {
			return nil, 0, fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
		}
		revisionID = vid
	} else if _, err := s.GetRevision(ctx, agreementID, revisionID); err != nil {
		return nil, 0, err
	}

	subs, err := s.ledger.ListForRevision(ctx, agreementID, revisionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, len(subs), nil
}

func (s *agreementService) transitioned(op string, rev *domain.Revision, actor string) {
	metrics.ObserveTransition(op)
	s.log.Info("default revision changed",
		zap.String("operation", op),
		zap.Int64("agreement_id", rev.AgreementID),
		zap.Int64("revision_id", rev.ID),
		zap.String("actor", actor),
	)
}

func requireRevision(ctx context.Context, tx repository.RevisionTx, agreementID, revisionID int64) (*domain.Revision, error) {
	rev, err := tx.GetRevision(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, fmt.Errorf("revision %d of agreement %d: %w", revisionID, agreementID, domain.ErrInvalidRevision)
	}
	return rev, nil
}
