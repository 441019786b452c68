// Package catalog manages the services and packages a business sells.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
)

// Invalidator drops cached tenant aggregates after a mutation.
type Invalidator interface {
	Bump(ctx context.Context, tenantID int64) error
}

// Manager implements catalog use cases.
type Manager struct {
	repo      Repository
	cache     Invalidator
	logger    *slog.Logger
	validator *validator.Validate
}

// NewManager constructs a catalog Manager. cache may be nil.
func NewManager(repo Repository, cache Invalidator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, cache: cache, logger: logger, validator: shared.NewValidator()}
}

// GetService returns a service of the tenant.
func (s *Manager) GetService(ctx context.Context, tenant shared.Tenant, id int64) (*Service, error) {
	return s.repo.GetService(ctx, tenant.BusinessID, id)
}

// ListServices returns a page of services and the total count.
func (s *Manager) ListServices(ctx context.Context, tenant shared.Tenant, filter ServiceFilter) ([]Service, int, error) {
	return s.repo.ListServices(ctx, tenant.BusinessID, filter)
}

// ActiveServices returns the services offered in the quote form.
func (s *Manager) ActiveServices(ctx context.Context, tenant shared.Tenant) ([]Service, error) {
	list, _, err := s.repo.ListServices(ctx, tenant.BusinessID, ServiceFilter{ActiveOnly: true, Limit: 1000})
	return list, err
}

// Categories lists the distinct service categories of the tenant.
func (s *Manager) Categories(ctx context.Context, tenant shared.Tenant) ([]string, error) {
	return s.repo.Categories(ctx, tenant.BusinessID)
}

// CreateService validates and stores a service.
func (s *Manager) CreateService(ctx context.Context, tenant shared.Tenant, in ServiceInput) (*Service, error) {
	in = in.normalized()
	if err := s.validateService(in); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateService(ctx, tenant.BusinessID, in)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.invalidate(ctx, tenant)
	return s.repo.GetService(ctx, tenant.BusinessID, id)
}

// UpdateService validates and saves a service.
func (s *Manager) UpdateService(ctx context.Context, tenant shared.Tenant, id int64, in ServiceInput) (*Service, error) {
	in = in.normalized()
	if err := s.validateService(in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateService(ctx, tenant.BusinessID, id, in); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	s.invalidate(ctx, tenant)
	return s.repo.GetService(ctx, tenant.BusinessID, id)
}

// DeleteService removes a service. Quote lines keep their copied name and price.
func (s *Manager) DeleteService(ctx context.Context, tenant shared.Tenant, id int64) error {
	if err := s.repo.DeleteService(ctx, tenant.BusinessID, id); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	s.invalidate(ctx, tenant)
	return nil
}

func (s *Manager) validateService(in ServiceInput) error {
	fields := shared.FieldErrors{}
	if err := shared.Validate(s.validator, in); err != nil {
		verr, ok := err.(*shared.ValidationError)
		if !ok {
			return err
		}
		for k, v := range verr.Fields {
			fields.Add(k, v)
		}
	}
	if in.Price.IsNegative() {
		fields.Add("price", "Le prix ne peut pas être négatif")
	}
	return fields.Err()
}

// GetPackage returns a package with its items.
func (s *Manager) GetPackage(ctx context.Context, tenant shared.Tenant, id int64) (*Package, error) {
	return s.repo.GetPackage(ctx, tenant.BusinessID, id)
}

// ListPackages returns the packages of the tenant.
func (s *Manager) ListPackages(ctx context.Context, tenant shared.Tenant, activeOnly bool) ([]Package, error) {
	return s.repo.ListPackages(ctx, tenant.BusinessID, activeOnly)
}

// CreatePackage stores a package and its items in one transaction.
func (s *Manager) CreatePackage(ctx context.Context, tenant shared.Tenant, in PackageInput) (*Package, error) {
	in = in.normalized()
	discountType, err := s.validatePackage(in)
	if err != nil {
		return nil, err
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkOwnership(ctx, tx, tenant.BusinessID, in.Items); err != nil {
			return err
		}
		var err error
		id, err = tx.CreatePackage(ctx, tenant.BusinessID, in, discountType)
		if err != nil {
			return err
		}
		return tx.ReplacePackageItems(ctx, id, in.Items)
	})
	if err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	return s.repo.GetPackage(ctx, tenant.BusinessID, id)
}

// UpdatePackage saves a package and replaces its items atomically.
func (s *Manager) UpdatePackage(ctx context.Context, tenant shared.Tenant, id int64, in PackageInput) (*Package, error) {
	in = in.normalized()
	discountType, err := s.validatePackage(in)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := checkOwnership(ctx, tx, tenant.BusinessID, in.Items); err != nil {
			return err
		}
		if err := tx.UpdatePackage(ctx, tenant.BusinessID, id, in, discountType); err != nil {
			return err
		}
		return tx.ReplacePackageItems(ctx, id, in.Items)
	})
	if err != nil {
		return nil, fmt.Errorf("update package: %w", err)
	}
	return s.repo.GetPackage(ctx, tenant.BusinessID, id)
}

// DeletePackage removes a package.
func (s *Manager) DeletePackage(ctx context.Context, tenant shared.Tenant, id int64) error {
	if err := s.repo.DeletePackage(ctx, tenant.BusinessID, id); err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	return nil
}

func (s *Manager) validatePackage(in PackageInput) (pricing.DiscountType, error) {
	fields := shared.FieldErrors{}
	if err := shared.Validate(s.validator, in); err != nil {
		verr, ok := err.(*shared.ValidationError)
		if !ok {
			return "", err
		}
		for k, v := range verr.Fields {
			fields.Add(k, v)
		}
	}
	discountType, err := pricing.ParseDiscountType(in.DiscountType)
	if err != nil {
		fields.Add("discountType", "Type de remise invalide")
	} else if msg := pricing.ValidateDiscount(in.Discount, discountType); msg != "" {
		fields.Add("discount", msg)
	}
	seen := make(map[int64]bool, len(in.Items))
	for i, item := range in.Items {
		if seen[item.ServiceID] {
			fields.Add(fmt.Sprintf("items[%d].serviceId", i), "Prestation déjà présente dans le forfait")
		}
		seen[item.ServiceID] = true
	}
	return discountType, fields.Err()
}

func checkOwnership(ctx context.Context, repo Repository, businessID int64, items []PackageItemInput) error {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ServiceID)
	}
	n, err := repo.CountOwnedServices(ctx, businessID, ids)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return shared.NewValidationError(map[string]string{"items": "Prestation introuvable"})
	}
	return nil
}

func (s *Manager) invalidate(ctx context.Context, tenant shared.Tenant) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, tenant.BusinessID); err != nil {
		s.logger.Warn("bump dashboard cache", slog.Any("error", err))
	}
}
