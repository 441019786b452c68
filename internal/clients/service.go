package clients

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/solkant/solkant/internal/shared"
)

// Invalidator drops cached tenant aggregates after a mutation.
type Invalidator interface {
	Bump(ctx context.Context, tenantID int64) error
}

// Service implements client management for a tenant.
type Service struct {
	repo      Repository
	cache     Invalidator
	audit     *shared.AuditLogger
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService constructs a Service. cache and audit may be nil.
func NewService(repo Repository, cache Invalidator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger, validator: shared.NewValidator()}
}

// Get returns a client of the tenant.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (*Client, error) {
	return s.repo.Get(ctx, tenant.BusinessID, id)
}

// List returns a page of clients and the total count.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, filter ListFilter) ([]Client, int, error) {
	return s.repo.List(ctx, tenant.BusinessID, filter)
}

// All returns every client, for pickers.
func (s *Service) All(ctx context.Context, tenant shared.Tenant) ([]Client, error) {
	list, _, err := s.repo.List(ctx, tenant.BusinessID, ListFilter{Limit: 1000})
	return list, err
}

// Quotes lists the quotes issued to a client.
func (s *Service) Quotes(ctx context.Context, tenant shared.Tenant, clientID int64) ([]QuoteSummary, error) {
	return s.repo.Quotes(ctx, tenant.BusinessID, clientID)
}

// Create validates and stores a new client.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, in Input) (*Client, error) {
	in = in.normalized()
	if err := shared.Validate(s.validator, in); err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, tenant.BusinessID, in)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.afterMutation(ctx, tenant, "client.created", id)
	return s.repo.Get(ctx, tenant.BusinessID, id)
}

// Update validates and saves a client.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, id int64, in Input) (*Client, error) {
	in = in.normalized()
	if err := shared.Validate(s.validator, in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, tenant.BusinessID, id, in); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	s.afterMutation(ctx, tenant, "client.updated", id)
	return s.repo.Get(ctx, tenant.BusinessID, id)
}

// Delete removes a client. Its quotes stay and show the client as deleted.
func (s *Service) Delete(ctx context.Context, tenant shared.Tenant, id int64) error {
	if err := s.repo.Delete(ctx, tenant.BusinessID, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	s.afterMutation(ctx, tenant, "client.deleted", id)
	return nil
}

func (s *Service) afterMutation(ctx context.Context, tenant shared.Tenant, action string, id int64) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, tenant.BusinessID); err != nil {
			s.logger.Warn("bump dashboard cache", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			BusinessID: tenant.BusinessID,
			ActorID:    tenant.UserID,
			Action:     action,
			Entity:     "client",
			EntityID:   fmt.Sprint(id),
		}); err != nil {
			s.logger.Warn("audit client", slog.Any("error", err))
		}
	}
}
