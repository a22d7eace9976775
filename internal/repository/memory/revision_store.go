package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository"
)

// RevisionStore keeps agreements in process memory. Writers are serialized by
// one mutex and a failed WithinAgreement restores the agreement's rows.
type RevisionStore struct {
	mu             sync.Mutex
	lastAgreement  int64
	lastRevision   int64
	agreements     map[int64]time.Time
	revisions      map[int64]*domain.Revision
	agreementIndex map[int64][]int64

	submissions *SubmissionLedger
}

var _ repository.RevisionStore = (*RevisionStore)(nil)

func NewRevisionStore() *RevisionStore {
	return &RevisionStore{
		agreements:     make(map[int64]time.Time),
		revisions:      make(map[int64]*domain.Revision),
		agreementIndex: make(map[int64][]int64),
	}
}

// CascadeTo makes agreement and revision deletes drop their submissions from
// l while the store lock is held, as the postgres foreign keys do.
func (s *RevisionStore) CascadeTo(l *SubmissionLedger) *RevisionStore {
	s.submissions = l
	return s
}

func (s *RevisionStore) CreateAgreement(ctx context.Context, params domain.CreateRevisionParams) (*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastAgreement++
	id := s.lastAgreement
	s.agreements[id] = params.CreatedAt

	tx := &revisionTx{s: s, agreementID: id}
	rev, err := tx.InsertRevision(ctx, params, true)
	if err != nil {
		delete(s.agreements, id)
		return nil, err
	}
	return rev, nil
}

func (s *RevisionStore) CreateRevision(ctx context.Context, agreementID int64, params domain.CreateRevisionParams, makeDefault bool) (*domain.Revision, error) {
	var created *domain.Revision
	err := s.WithinAgreement(ctx, agreementID, func(tx repository.RevisionTx) error {
		rev, err := tx.InsertRevision(ctx, params, makeDefault)
		created = rev
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *RevisionStore) GetDefaultRevisionID(ctx context.Context, agreementID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vid, ok := s.defaultOf(agreementID)
	return vid, ok, nil
}

func (s *RevisionStore) GetLatestRevisionID(ctx context.Context, agreementID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vid, ok := s.latestOf(agreementID)
	return vid, ok, nil
}

func (s *RevisionStore) SetDefault(ctx context.Context, agreementID, revisionID int64) error {
	return s.WithinAgreement(ctx, agreementID, func(tx repository.RevisionTx) error {
		return tx.SetDefault(ctx, revisionID)
	})
}

func (s *RevisionStore) DeleteRevision(ctx context.Context, revisionID int64) error {
	s.mu.Lock()
	rev, ok := s.revisions[revisionID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("revision %d: %w", revisionID, domain.ErrNotFound)
	}
	return s.WithinAgreement(ctx, rev.AgreementID, func(tx repository.RevisionTx) error {
		return tx.DeleteRevision(ctx, revisionID)
	})
}

func (s *RevisionStore) ListRevisionIDs(ctx context.Context, agreementID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.agreementIndex[agreementID]...), nil
}

func (s *RevisionStore) ListRevisions(ctx context.Context, agreementID int64) ([]*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.agreementIndex[agreementID]
	out := make([]*domain.Revision, 0, len(ids))
	for _, vid := range ids {
		out = append(out, s.revisions[vid].Clone())
	}
	return out, nil
}

func (s *RevisionStore) GetRevision(ctx context.Context, revisionID int64) (*domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev, ok := s.revisions[revisionID]
	if !ok {
		return nil, nil
	}
	return rev.Clone(), nil
}

func (s *RevisionStore) GetAgreement(ctx context.Context, agreementID int64) (*domain.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agreementView(agreementID), nil
}

func (s *RevisionStore) ListAgreements(ctx context.Context, publishedOnly bool) ([]*domain.Agreement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.agreements))
	for id := range s.agreements {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*domain.Agreement
	for _, id := range ids {
		a := s.agreementView(id)
		if a == nil || (publishedOnly && !a.Published) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *RevisionStore) DeleteAgreement(ctx context.Context, agreementID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agreements[agreementID]; !ok {
		return fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
	}
	for _, vid := range s.agreementIndex[agreementID] {
		delete(s.revisions, vid)
	}
	delete(s.agreementIndex, agreementID)
	delete(s.agreements, agreementID)
	if s.submissions != nil {
		s.submissions.drop(func(k triple) bool { return k.agreementID == agreementID })
	}
	return nil
}

func (s *RevisionStore) WithinAgreement(ctx context.Context, agreementID int64, fn func(tx repository.RevisionTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agreements[agreementID]; !ok {
		return fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
	}

	snapshot := s.snapshot(agreementID)
	tx := &revisionTx{s: s, agreementID: agreementID}
	if err := fn(tx); err != nil {
		s.restore(agreementID, snapshot)
		return err
	}
	if s.submissions != nil && len(tx.dropped) > 0 {
		s.submissions.drop(func(k triple) bool {
			return k.agreementID == agreementID && slices.Contains(tx.dropped, k.revisionID)
		})
	}
	return nil
}

// Helpers below expect s.mu to be held.

func (s *RevisionStore) defaultOf(agreementID int64) (int64, bool) {
	for _, vid := range s.agreementIndex[agreementID] {
		if s.revisions[vid].IsDefault {
			return vid, true
		}
	}
	return 0, false
}

func (s *RevisionStore) latestOf(agreementID int64) (int64, bool) {
	ids := s.agreementIndex[agreementID]
	if len(ids) == 0 {
		return 0, false
	}
	return ids[len(ids)-1], true
}

func (s *RevisionStore) agreementView(agreementID int64) *domain.Agreement {
	createdAt, ok := s.agreements[agreementID]
	if !ok {
		return nil
	}
	vid, ok := s.defaultOf(agreementID)
	if !ok {
		return nil
	}
	return domain.AgreementFromRevision(s.revisions[vid], createdAt)
}

func (s *RevisionStore) snapshot(agreementID int64) []*domain.Revision {
	ids := s.agreementIndex[agreementID]
	snap := make([]*domain.Revision, 0, len(ids))
	for _, vid := range ids {
		snap = append(snap, s.revisions[vid].Clone())
	}
	return snap
}

func (s *RevisionStore) restore(agreementID int64, snap []*domain.Revision) {
	for _, vid := range s.agreementIndex[agreementID] {
		delete(s.revisions, vid)
	}
	ids := make([]int64, 0, len(snap))
	for _, rev := range snap {
		s.revisions[rev.ID] = rev
		ids = append(ids, rev.ID)
	}
	s.agreementIndex[agreementID] = ids
}

type revisionTx struct {
	s           *RevisionStore
	agreementID int64
	dropped     []int64
}

func (t *revisionTx) revision(revisionID int64) (*domain.Revision, bool) {
	rev, ok := t.s.revisions[revisionID]
	if !ok || rev.AgreementID != t.agreementID {
		return nil, false
	}
	return rev, true
}

func (t *revisionTx) GetRevision(ctx context.Context, revisionID int64) (*domain.Revision, error) {
	rev, ok := t.revision(revisionID)
	if !ok {
		return nil, nil
	}
	return rev.Clone(), nil
}

func (t *revisionTx) DefaultRevisionID(ctx context.Context) (int64, bool, error) {
	vid, ok := t.s.defaultOf(t.agreementID)
	return vid, ok, nil
}

func (t *revisionTx) LatestRevisionID(ctx context.Context) (int64, bool, error) {
	vid, ok := t.s.latestOf(t.agreementID)
	return vid, ok, nil
}

func (t *revisionTx) clearDefault() {
	for _, vid := range t.s.agreementIndex[t.agreementID] {
		t.s.revisions[vid].IsDefault = false
	}
}

func (t *revisionTx) InsertRevision(ctx context.Context, params domain.CreateRevisionParams, makeDefault bool) (*domain.Revision, error) {
	if makeDefault {
		t.clearDefault()
	}

	t.s.lastRevision++
	rev := &domain.Revision{
		ID:           t.s.lastRevision,
		AgreementID:  t.agreementID,
		Langcode:     params.Langcode,
		Translations: make(map[string]domain.Content, len(params.Translations)),
		OwnerID:      params.OwnerID,
		Published:    params.Published,
		IsDefault:    makeDefault,
		Log:          params.Log,
		AuthoredBy:   params.AuthoredBy,
		CreatedAt:    params.CreatedAt,
	}
	for lang, content := range params.Translations {
		rev.Translations[lang] = content
	}

	t.s.revisions[rev.ID] = rev
	t.s.agreementIndex[t.agreementID] = append(t.s.agreementIndex[t.agreementID], rev.ID)
	return rev.Clone(), nil
}

func (t *revisionTx) UpdateRevision(ctx context.Context, rev *domain.Revision) error {
	stored, ok := t.revision(rev.ID)
	if !ok {
		return fmt.Errorf("revision %d of agreement %d: %w", rev.ID, t.agreementID, domain.ErrInvalidRevision)
	}

	updated := rev.Clone()
	updated.AgreementID = t.agreementID
	updated.IsDefault = stored.IsDefault
	t.s.revisions[rev.ID] = updated
	return nil
}

func (t *revisionTx) SetDefault(ctx context.Context, revisionID int64) error {
	rev, ok := t.revision(revisionID)
	if !ok {
		return fmt.Errorf("revision %d of agreement %d: %w", revisionID, t.agreementID, domain.ErrInvalidRevision)
	}
	t.clearDefault()
	rev.IsDefault = true
	return nil
}

func (t *revisionTx) DeleteRevision(ctx context.Context, revisionID int64) error {
	rev, ok := t.revision(revisionID)
	if !ok {
		return fmt.Errorf("revision %d of agreement %d: %w", revisionID, t.agreementID, domain.ErrInvalidRevision)
	}
	if rev.IsDefault {
		return fmt.Errorf("revision %d: %w", revisionID, domain.ErrCannotDeleteDefault)
	}

	delete(t.s.revisions, revisionID)
	ids := t.s.agreementIndex[t.agreementID]
	kept := ids[:0]
	for _, vid := range ids {
		if vid != revisionID {
			kept = append(kept, vid)
		}
	}
	t.s.agreementIndex[t.agreementID] = kept
	t.dropped = append(t.dropped, revisionID)
	return nil
}
