// Package seed loads agreements, accounts and settings from a YAML file.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/internal/service"
	"github.com/thatlq1812/user-agreement/pkg/validator"
)

type File struct {
	RedirectURL string      `yaml:"redirect_url"`
	Accounts    []Account   `yaml:"accounts"`
	Agreements  []Agreement `yaml:"agreements"`
}

type Account struct {
	ID     string   `yaml:"id"`
	Email  string   `yaml:"email"`
	Name   string   `yaml:"name"`
	Roles  []string `yaml:"roles"`
	Active *bool    `yaml:"active"`
}

type Agreement struct {
	Langcode          string                    `yaml:"langcode"`
	Title             string                    `yaml:"title"`
	Body              string                    `yaml:"body"`
	SupplementaryInfo string                    `yaml:"supplementary_info"`
	Translations      map[string]domain.Content `yaml:"translations"`
	Published         bool                      `yaml:"published"`
	OwnerID           string                    `yaml:"owner_id"`
}

// Result counts what Apply changed.
type Result struct {
	Accounts           int
	AgreementsCreated  int
	AgreementsSkipped  int
	RedirectConfigured bool
}

func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, fmt.Errorf("%w: seed file: %v", domain.ErrInvalidInput, err)
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

type Seeder struct {
	agreements service.AgreementService
	settings   service.SettingsService
	accounts   repository.AccountRepository
	langcode   string
	log        *zap.Logger
}

func NewSeeder(agreements service.AgreementService, settings service.SettingsService, accounts repository.AccountRepository, defaultLangcode string, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultLangcode == "" {
		defaultLangcode = "en"
	}
	return &Seeder{
		agreements: agreements,
		settings:   settings,
		accounts:   accounts,
		langcode:   defaultLangcode,
		log:        log,
	}
}

// Apply upserts accounts and creates agreements whose title is not taken yet,
// so running the same file twice is harmless.
func (s *Seeder) Apply(ctx context.Context, f *File, actor string) (Result, error) {
	var res Result

	for _, a := range f.Accounts {
		if a.ID == "" {
			return res, fmt.Errorf("%w: account without id", domain.ErrInvalidInput)
		}
		if a.Email != "" {
			if err := validator.ValidateEmail(a.Email); err != nil {
				return res, fmt.Errorf("%w: account %s: %v", domain.ErrInvalidInput, a.ID, err)
			}
		}
		active := true
		if a.Active != nil {
			active = *a.Active
		}
		err := s.accounts.Upsert(ctx, &domain.Account{
			ID:     a.ID,
			Email:  a.Email,
			Name:   a.Name,
			Roles:  a.Roles,
			Active: active,
		})
		if err != nil {
			return res, fmt.Errorf("failed to seed account %s: %w", a.ID, err)
		}
		res.Accounts++
	}

	existing, err := s.agreements.List(ctx, false)
	if err != nil {
		return res, err
	}
	taken := make(map[string]bool, len(existing))
	for _, a := range existing {
		taken[strings.ToLower(a.Title)] = true
	}

	for _, a := range f.Agreements {
		if taken[strings.ToLower(a.Title)] {
			res.AgreementsSkipped++
			continue
		}

		langcode := a.Langcode
		if langcode == "" {
			langcode = s.langcode
		}
		rev, err := s.agreements.Create(ctx, service.CreateAgreementParams{
			Langcode:          langcode,
			Title:             a.Title,
			Body:              a.Body,
			SupplementaryInfo: a.SupplementaryInfo,
			Translations:      a.Translations,
			Published:         a.Published,
			OwnerID:           a.OwnerID,
			Log:               "Seeded.",
			Actor:             actor,
		})
		if err != nil {
			return res, fmt.Errorf("failed to seed agreement %q: %w", a.Title, err)
		}
		taken[strings.ToLower(a.Title)] = true
		res.AgreementsCreated++

		s.log.Info("agreement seeded", zap.Int64("agreement_id", rev.AgreementID), zap.String("title", a.Title))
	}

	if f.RedirectURL != "" {
		if err := s.settings.SetRedirectURL(ctx, f.RedirectURL); err != nil {
			return res, err
		}
		res.RedirectConfigured = true
	}
	return res, nil
}
