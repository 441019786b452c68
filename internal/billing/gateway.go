// Package billing bridges the subscription lifecycle to the payment
// provider: hosted checkout, customer portal and webhook events.
package billing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBillingDisabled is returned when no payment provider is configured.
	ErrBillingDisabled = errors.New("billing: disabled")
	// ErrInvalidSignature is returned for webhook payloads failing verification.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	// ErrNoCustomer is returned when the portal is requested before any checkout.
	ErrNoCustomer = errors.New("billing: business has no customer")
	// ErrUnknownPlan is returned for a plan without configured price.
	ErrUnknownPlan = errors.New("billing: unknown plan")
)

// Plans offered on the billing page.
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Event types handled by the webhook.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// CheckoutRequest describes a hosted checkout session.
type CheckoutRequest struct {
	BusinessID    int64
	CustomerID    string
	CustomerEmail string
	PriceID       string
	Plan          string
	SuccessURL    string
	CancelURL     string
}

// Event is a verified provider event reduced to what the app stores.
type Event struct {
	ID               string
	Type             string
	BusinessID       int64
	CustomerID       string
	SubscriptionID   string
	Status           string
	PriceID          string
	Plan             string
	CurrentPeriodEnd *time.Time
}

// Gateway is the payment provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortal(ctx context.Context, customerID, returnURL string) (string, error)
	ParseEvent(payload []byte, signature string) (Event, error)
}
