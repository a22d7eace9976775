package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository/memory"
	"github.com/thatlq1812/user-agreement/internal/service"
)

const sample = `
redirect_url: /welcome
accounts:
  - id: admin
    email: admin@example.com
    roles: [administrator]
  - id: blocked
    active: false
agreements:
  - title: Terms of Service
    body: Be nice.
    published: true
    translations:
      de:
        title: Nutzungsbedingungen
        body: Sei nett.
  - title: Marketing
    langcode: fr
    body: Optional.
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "/welcome", f.RedirectURL)
	require.Len(t, f.Accounts, 2)
	assert.Equal(t, []string{"administrator"}, f.Accounts[0].Roles)
	require.Len(t, f.Agreements, 2)
	assert.Equal(t, "Nutzungsbedingungen", f.Agreements[0].Translations["de"].Title)

	_, err = Parse(strings.NewReader("agreements:\n  - titel: typo\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	empty, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Agreements)
}

func TestSeeder_ApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRevisionStore()
	ledger := memory.NewSubmissionLedger(nil)
	accounts := memory.NewAccountRepository(nil)
	settings := service.NewSettingsService(memory.NewSettingsRepository())
	agreements := service.NewAgreementService(store, ledger, nil, nil)

	seeder := NewSeeder(agreements, settings, accounts, "en", nil)
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	res, err := seeder.Apply(ctx, f, "seed")
	require.NoError(t, err)
	assert.Equal(t, Result{Accounts: 2, AgreementsCreated: 2, RedirectConfigured: true}, res)

	list, err := agreements.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "en", list[0].Langcode)
	assert.True(t, list[0].Published)
	assert.Equal(t, "fr", list[1].Langcode)
	assert.False(t, list[1].Published)

	blocked, err := accounts.GetByID(ctx, "blocked")
	require.NoError(t, err)
	assert.False(t, blocked.Active)

	url, err := settings.RedirectURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/welcome", url)

	res, err = seeder.Apply(ctx, f, "seed")
	require.NoError(t, err)
	assert.Equal(t, 0, res.AgreementsCreated)
	assert.Equal(t, 2, res.AgreementsSkipped)
}

func TestSeeder_RejectsBadAccount(t *testing.T) {
	ctx := context.Background()
	accounts := memory.NewAccountRepository(nil)
	settings := service.NewSettingsService(memory.NewSettingsRepository())
	agreements := service.NewAgreementService(memory.NewRevisionStore(), memory.NewSubmissionLedger(nil), nil, nil)
	seeder := NewSeeder(agreements, settings, accounts, "", nil)

	_, err := seeder.Apply(ctx, &File{Accounts: []Account{{ID: "u1", Email: "not-an-email"}}}, "seed")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = seeder.Apply(ctx, &File{Accounts: []Account{{Email: "a@example.com"}}}, "seed")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	acc, err := accounts.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, acc)
}
