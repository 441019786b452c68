package businesses

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/solkant/solkant/internal/shared"
)

// Service exposes business settings to handlers and other modules.
type Service struct {
	repo      Repository
	validator *validator.Validate
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: shared.NewValidator()}
}

// Get returns the tenant's business.
func (s *Service) Get(ctx context.Context, businessID int64) (*Business, error) {
	return s.repo.Get(ctx, businessID)
}

// UpdateProfile validates and saves the settings form.
func (s *Service) UpdateProfile(ctx context.Context, businessID int64, p Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Siret = strings.ReplaceAll(strings.TrimSpace(p.Siret), " ", "")
	if err := shared.Validate(s.validator, p); err != nil {
		return err
	}
	if err := s.repo.UpdateProfile(ctx, businessID, p); err != nil {
		return fmt.Errorf("update business profile: %w", err)
	}
	return nil
}
