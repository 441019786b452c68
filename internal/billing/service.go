package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/shared"
)

const idempotencyModule = "billing"

// Accounts persists the subscription state of businesses.
type Accounts interface {
	Get(ctx context.Context, id int64) (*businesses.Business, error)
	FindByCustomerID(ctx context.Context, customerID string) (*businesses.Business, error)
	ApplySubscription(ctx context.Context, id int64, update businesses.SubscriptionUpdate) error
}

// Idempotency remembers processed events.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Prices maps plans to provider price identifiers.
type Prices struct {
	Monthly string
	Yearly  string
}

func (p Prices) lookup(plan string) (string, error) {
	switch plan {
	case PlanMonthly:
		if p.Monthly != "" {
			return p.Monthly, nil
		}
	case PlanYearly:
		if p.Yearly != "" {
			return p.Yearly, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
}

func (p Prices) plan(priceID string) string {
	switch {
	case priceID == "":
		return ""
	case priceID == p.Monthly:
		return PlanMonthly
	case priceID == p.Yearly:
		return PlanYearly
	}
	return ""
}

// Service runs billing use cases.
type Service struct {
	gateway     Gateway
	accounts    Accounts
	idempotency Idempotency
	prices      Prices
	baseURL     string
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService constructs a Service. A nil gateway disables billing.
func NewService(gateway Gateway, accounts Accounts, idempotency Idempotency, prices Prices, baseURL string, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway:     gateway,
		accounts:    accounts,
		idempotency: idempotency,
		prices:      prices,
		baseURL:     strings.TrimRight(baseURL, "/"),
		metrics:     metrics,
		logger:      logger,
	}
}

// Enabled reports whether a payment provider is configured.
func (s *Service) Enabled() bool {
	return s.gateway != nil
}

// Status returns the business with its subscription fields.
func (s *Service) Status(ctx context.Context, tenant shared.Tenant) (*businesses.Business, error) {
	return s.accounts.Get(ctx, tenant.BusinessID)
}

// Checkout returns the hosted checkout URL for plan.
func (s *Service) Checkout(ctx context.Context, tenant shared.Tenant, plan string) (string, error) {
	if !s.Enabled() {
		return "", ErrBillingDisabled
	}
	priceID, err := s.prices.lookup(plan)
	if err != nil {
		return "", err
	}
	b, err := s.accounts.Get(ctx, tenant.BusinessID)
	if err != nil {
		return "", err
	}
	return s.gateway.CreateCheckout(ctx, CheckoutRequest{
		BusinessID:    b.ID,
		CustomerID:    b.StripeCustomerID,
		CustomerEmail: tenant.Email,
		PriceID:       priceID,
		Plan:          plan,
		SuccessURL:    s.baseURL + "/billing?checkout=success",
		CancelURL:     s.baseURL + "/billing?checkout=cancel",
	})
}

// Portal returns the billing portal URL of the tenant's customer.
func (s *Service) Portal(ctx context.Context, tenant shared.Tenant) (string, error) {
	if !s.Enabled() {
		return "", ErrBillingDisabled
	}
	b, err := s.accounts.Get(ctx, tenant.BusinessID)
	if err != nil {
		return "", err
	}
	if b.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.gateway.CreatePortal(ctx, b.StripeCustomerID, s.baseURL+"/billing")
}

// HandleWebhook verifies and applies a provider event once. A failed event
// releases its idempotency key so the provider retry is processed.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.Enabled() {
		return ErrBillingDisabled
	}
	evt, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		s.metrics.WebhookEvent("unknown", "invalid")
		return err
	}
	if err := s.idempotency.CheckAndInsert(ctx, evt.ID, idempotencyModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			s.metrics.WebhookEvent(evt.Type, "duplicate")
			s.logger.InfoContext(ctx, "webhook event already processed", slog.String("event_id", evt.ID))
			return nil
		}
		return fmt.Errorf("reserve webhook event: %w", err)
	}

	handled, err := s.apply(ctx, evt)
	if err != nil {
		if delErr := s.idempotency.Delete(ctx, evt.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "release webhook event", slog.String("event_id", evt.ID), slog.Any("error", delErr))
		}
		s.metrics.WebhookEvent(evt.Type, "failed")
		return fmt.Errorf("apply %s: %w", evt.Type, err)
	}
	result := "processed"
	if !handled {
		result = "ignored"
	}
	s.metrics.WebhookEvent(evt.Type, result)
	return nil
}

func (s *Service) apply(ctx context.Context, evt Event) (bool, error) {
	switch evt.Type {
	case EventCheckoutCompleted:
		if evt.BusinessID <= 0 {
			return false, errors.New("checkout session without business reference")
		}
		return true, s.accounts.ApplySubscription(ctx, evt.BusinessID, businesses.SubscriptionUpdate{
			CustomerID:     evt.CustomerID,
			SubscriptionID: evt.SubscriptionID,
			Status:         businesses.SubscriptionActive,
			Plan:           evt.Plan,
		})
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		b, err := s.accounts.FindByCustomerID(ctx, evt.CustomerID)
		if err != nil {
			return false, fmt.Errorf("find customer %s: %w", evt.CustomerID, err)
		}
		plan := s.prices.plan(evt.PriceID)
		if plan == "" {
			plan = evt.Plan
		}
		return true, s.accounts.ApplySubscription(ctx, b.ID, businesses.SubscriptionUpdate{
			SubscriptionID:   evt.SubscriptionID,
			Status:           evt.Status,
			Plan:             plan,
			CurrentPeriodEnd: evt.CurrentPeriodEnd,
		})
	default:
		return false, nil
	}
}
