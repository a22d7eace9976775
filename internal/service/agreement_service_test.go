package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

func countDefaults(t *testing.T, env *testEnv, agreementID int64) int {
	t.Helper()
	revs, err := env.store.ListRevisions(context.Background(), agreementID)
	require.NoError(t, err)
	n := 0
	for _, r := range revs {
		if r.IsDefault {
			n++
		}
	}
	return n
}

func TestAgreementService_CreateValidates(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.agreement.Create(context.Background(), CreateAgreementParams{Langcode: "en", Title: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.agreement.Create(context.Background(), CreateAgreementParams{Langcode: "not a lang", Title: "Terms"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAgreementService_CreateIsDefault(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rev := env.create(t, "Terms", true)
	assert.True(t, rev.IsDefault)

	a, err := env.agreement.Get(ctx, rev.AgreementID)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, a.DefaultRevisionID)
	assert.Equal(t, "Terms", a.Title)

	_, err = env.agreement.Get(ctx, rev.AgreementID+100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAgreementService_PublishKeepsRevisionID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	v2 := env.draft(t, v1.AgreementID, "Terms v2")

	assert.False(t, v2.IsDefault)
	assert.Equal(t, v1.ID, env.defaultOf(t, v1.AgreementID))

	env.clock.advance(time.Hour)
	published, err := env.agreement.Publish(ctx, v1.AgreementID, v2.ID, "editor")
	require.NoError(t, err)

	assert.Equal(t, v2.ID, published.ID)
	assert.True(t, published.IsDefault)
	assert.Equal(t, fmt.Sprintf("Published revision %d.", v2.ID), published.Log)
	assert.Equal(t, "editor", published.AuthoredBy)
	assert.Equal(t, v2.ID, env.defaultOf(t, v1.AgreementID))
	assert.Equal(t, 1, countDefaults(t, env, v1.AgreementID))

	ids, err := env.store.ListRevisionIDs(ctx, v1.AgreementID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// Publishing the default again changes nothing
	again, err := env.agreement.Publish(ctx, v1.AgreementID, v2.ID, "editor")
	require.NoError(t, err)
	assert.Equal(t, published.Log, again.Log)
}

func TestAgreementService_RevertForksNewRevision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	v2 := env.draft(t, v1.AgreementID, "Terms v2")
	_, err := env.agreement.Publish(ctx, v1.AgreementID, v2.ID, "admin")
	require.NoError(t, err)

	fork, err := env.agreement.Revert(ctx, v1.AgreementID, v1.ID, "admin")
	require.NoError(t, err)

	assert.Greater(t, fork.ID, v2.ID)
	assert.True(t, fork.IsDefault)
	assert.True(t, fork.Published)
	assert.Equal(t, "Terms", fork.Content().Title)
	assert.Equal(t, "Copy of the revision from 2026-03-02 10:30.", fork.Log)
	assert.Equal(t, fork.ID, env.defaultOf(t, v1.AgreementID))
	assert.Equal(t, 1, countDefaults(t, env, v1.AgreementID))

	// v1 itself is untouched
	old, err := env.agreement.GetRevision(ctx, v1.AgreementID, v1.ID)
	require.NoError(t, err)
	assert.False(t, old.IsDefault)
	assert.Equal(t, v1.Log, old.Log)
}

func TestAgreementService_RevertDefaultIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)

	rev, err := env.agreement.Revert(ctx, v1.AgreementID, v1.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, rev.ID)

	ids, err := env.store.ListRevisionIDs(ctx, v1.AgreementID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestAgreementService_RevertTranslation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	v1, err := env.agreement.Create(ctx, CreateAgreementParams{
		Langcode:     "en",
		Title:        "Terms",
		Body:         "Body",
		Translations: map[string]domain.Content{"de": {Title: "Bedingungen", Body: "Text"}},
		Published:    true,
		OwnerID:      "owner-1",
	})
	require.NoError(t, err)

	_, err = env.agreement.Edit(ctx, EditAgreementParams{
		AgreementID: v1.AgreementID,
		Langcode:    "de",
		Title:       "Neue Bedingungen",
		Body:        "Neuer Text",
		NewRevision: true,
	})
	require.NoError(t, err)

	fork, err := env.agreement.RevertTranslation(ctx, RevertTranslationParams{
		AgreementID: v1.AgreementID,
		RevisionID:  v1.ID,
		Langcode:    "de",
	})
	require.NoError(t, err)

	assert.True(t, fork.IsDefault)
	assert.Equal(t, "Bedingungen", fork.Translations["de"].Title)
	assert.Equal(t, "Terms", fork.Translations["en"].Title)
	assert.Equal(t, "Copy of the DE translation of the revision from 2026-03-02 10:30.", fork.Log)

	_, err = env.agreement.RevertTranslation(ctx, RevertTranslationParams{
		AgreementID: v1.AgreementID,
		RevisionID:  v1.ID,
		Langcode:    "fr",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAgreementService_SetActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", false)

	a, err := env.agreement.Get(ctx, v1.AgreementID)
	require.NoError(t, err)
	assert.False(t, a.Published)

	rev, err := env.agreement.SetActive(ctx, v1.AgreementID, v1.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, rev.ID)
	assert.True(t, rev.Published)
	assert.Equal(t, "Set as active on 2026-03-02 10:30.", rev.Log)

	a, err = env.agreement.Get(ctx, v1.AgreementID)
	require.NoError(t, err)
	assert.True(t, a.Published)

	v2 := env.draft(t, v1.AgreementID, "Terms v2")
	rev, err = env.agreement.SetActive(ctx, v1.AgreementID, v2.ID, "admin")
	require.NoError(t, err)
	assert.True(t, rev.IsDefault)
	assert.True(t, rev.Published)
	assert.Equal(t, v2.ID, env.defaultOf(t, v1.AgreementID))
}

func TestAgreementService_ForeignRevisionIsInvalid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	a := env.create(t, "A", true)
	b := env.create(t, "B", true)

	_, err := env.agreement.Publish(ctx, a.AgreementID, b.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)
	_, err = env.agreement.Revert(ctx, a.AgreementID, b.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)
	_, err = env.agreement.SetActive(ctx, a.AgreementID, 9999, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)
	_, err = env.agreement.GetRevision(ctx, a.AgreementID, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)

	assert.Equal(t, a.ID, env.defaultOf(t, a.AgreementID))
	assert.Equal(t, b.ID, env.defaultOf(t, b.AgreementID))
}

func TestAgreementService_DeleteRevision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	v2 := env.draft(t, v1.AgreementID, "Terms v2")

	err := env.agreement.DeleteRevision(ctx, v1.AgreementID, v1.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrCannotDeleteDefault)

	require.NoError(t, env.agreement.DeleteRevision(ctx, v1.AgreementID, v2.ID, "admin"))
	_, err = env.agreement.GetRevision(ctx, v1.AgreementID, v2.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAgreementService_DeleteRevisionDropsItsSubmissions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	v2 := env.draft(t, v1.AgreementID, "Terms v2")
	env.accept(t, "u1", v1)
	env.accept(t, "u1", v2)

	require.NoError(t, env.agreement.DeleteRevision(ctx, v1.AgreementID, v2.ID, "admin"))

	subs, err := env.ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, v1.ID, subs[0].RevisionID)
}

func TestAgreementService_EditRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)

	// The published default cannot be changed in place
	_, err := env.agreement.Edit(ctx, EditAgreementParams{AgreementID: v1.AgreementID, Title: "Typo fix"})
	assert.ErrorIs(t, err, domain.ErrRevisionLocked)

	v2 := env.draft(t, v1.AgreementID, "Terms v2")

	// Only the latest revision is editable
	_, err = env.agreement.Edit(ctx, EditAgreementParams{
		AgreementID: v1.AgreementID,
		RevisionID:  v1.ID,
		Title:       "Old",
		NewRevision: true,
	})
	assert.ErrorIs(t, err, domain.ErrRevisionLocked)

	// A draft can be amended in place without moving the default
	edited, err := env.agreement.Edit(ctx, EditAgreementParams{
		AgreementID: v1.AgreementID,
		RevisionID:  v2.ID,
		Title:       "Terms v2 final",
		Log:         "wording",
	})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, edited.ID)
	assert.Equal(t, "Terms v2 final", edited.Content().Title)
	assert.Equal(t, v1.ID, env.defaultOf(t, v1.AgreementID))

	// A published new revision becomes the default
	published := true
	v3, err := env.agreement.Edit(ctx, EditAgreementParams{
		AgreementID: v1.AgreementID,
		Title:       "Terms v3",
		Published:   &published,
		NewRevision: true,
	})
	require.NoError(t, err)
	assert.True(t, v3.IsDefault)
	assert.Equal(t, v3.ID, env.defaultOf(t, v1.AgreementID))
	assert.Equal(t, 1, countDefaults(t, env, v1.AgreementID))
}

func TestAgreementService_RevisionsOverview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	v2 := env.draft(t, v1.AgreementID, "Terms v2")
	v3 := env.draft(t, v1.AgreementID, "Terms v3")
	_, err := env.agreement.Publish(ctx, v1.AgreementID, v2.ID, "admin")
	require.NoError(t, err)
	env.accept(t, "u1", v2)
	env.accept(t, "u2", v2)

	summaries, err := env.agreement.Revisions(ctx, v1.AgreementID)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	byID := map[int64]domain.RevisionSummary{}
	for _, s := range summaries {
		byID[s.Revision.ID] = s
	}
	assert.Equal(t, v3.ID, summaries[0].Revision.ID)

	assert.Equal(t, domain.RevisionDraft, byID[v3.ID].State)
	assert.Equal(t, []string{domain.OperationPublish, domain.OperationSetActive, domain.OperationEdit, domain.OperationDelete}, byID[v3.ID].Operations)

	assert.Equal(t, domain.RevisionDefault, byID[v2.ID].State)
	assert.Equal(t, 2, byID[v2.ID].SubmissionCount)
	assert.Empty(t, byID[v2.ID].Operations)

	assert.Equal(t, []string{domain.OperationRevert, domain.OperationSetActive, domain.OperationDelete}, byID[v1.ID].Operations)
}

func TestAgreementService_DeleteAgreement(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	env.accept(t, "u1", v1)

	require.NoError(t, env.agreement.Delete(ctx, v1.AgreementID, "admin"))

	_, err := env.agreement.Get(ctx, v1.AgreementID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	subs, err := env.ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	assert.ErrorIs(t, env.agreement.Delete(ctx, v1.AgreementID, "admin"), domain.ErrNotFound)
}

func TestAgreementService_Submissions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)
	env.accept(t, "u1", v1)

	subs, total, err := env.agreement.Submissions(ctx, v1.AgreementID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, domain.SubmissionName("u1", v1.AgreementID, v1.ID), subs[0].Name)

	other := env.create(t, "Other", true)
	_, _, err = env.agreement.Submissions(ctx, v1.AgreementID, other.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRevision)
}

func TestAgreementService_ConcurrentTransitionsKeepOneDefault(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	v1 := env.create(t, "Terms", true)

	drafts := []*domain.Revision{v1}
	for i := 0; i < 4; i++ {
		drafts = append(drafts, env.draft(t, v1.AgreementID, fmt.Sprintf("Terms %d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := drafts[i%len(drafts)]
			if i%2 == 0 {
				_, _ = env.agreement.Publish(ctx, v1.AgreementID, target.ID, "admin")
			} else {
				_, _ = env.agreement.SetActive(ctx, v1.AgreementID, target.ID, "admin")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, countDefaults(t, env, v1.AgreementID))
}
