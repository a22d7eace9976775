package service

import (
	"context"
	"fmt"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/repository"
	"github.com/thatlq1812/user-agreement/pkg/validator"
)

type SettingsService interface {
	// Redirect target after a completed consent flow; "" means unset
	RedirectURL(ctx context.Context) (string, error)
	SetRedirectURL(ctx context.Context, url string) error
}

type settingsService struct {
	repo repository.SettingsRepository
}

func NewSettingsService(repo repository.SettingsRepository) SettingsService {
	return &settingsService{repo: repo}
}

func (s *settingsService) RedirectURL(ctx context.Context) (string, error) {
	v, err := s.repo.Get(ctx, repository.SettingRedirectURL)
	if err != nil {
		return "", fmt.Errorf("failed to read redirect setting: %w", err)
	}
	return v, nil
}

func (s *settingsService) SetRedirectURL(ctx context.Context, url string) error {
	if err := validator.ValidateRedirectURL(url); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return s.repo.Set(ctx, repository.SettingRedirectURL, url)
}
