package businesses

import "time"

// Subscription statuses mirrored from the payment provider.
const (
	SubscriptionNone     = "none"
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Business is a tenant: a beauty institute and its document settings.
type Business struct {
	ID                   int64
	Name                 string
	Email                string
	Phone                string
	Address              string
	Siret                string
	VATMention           string
	QuoteFooter          string
	QuoteValidityDays    int
	StripeCustomerID     string
	StripeSubscriptionID string
	SubscriptionStatus   string
	SubscriptionPlan     string
	CurrentPeriodEnd     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Subscribed reports whether the business has a paying subscription.
func (b Business) Subscribed() bool {
	return b.SubscriptionStatus == SubscriptionActive || b.SubscriptionStatus == SubscriptionTrialing
}

// Profile holds the fields editable from the settings page.
type Profile struct {
	Name              string `json:"name" validate:"required,max=120"`
	Email             string `json:"email" validate:"omitempty,email"`
	Phone             string `json:"phone" validate:"max=30"`
	Address           string `json:"address" validate:"max=300"`
	Siret             string `json:"siret" validate:"omitempty,numeric,len=14"`
	VATMention        string `json:"vat_mention" validate:"max=200"`
	QuoteFooter       string `json:"quote_footer" validate:"max=1000"`
	QuoteValidityDays int    `json:"quote_validity_days" validate:"gte=0,lte=365"`
}

// SubscriptionUpdate is what a billing event changes on a business.
type SubscriptionUpdate struct {
	CustomerID       string
	SubscriptionID   string
	Status           string
	Plan             string
	CurrentPeriodEnd *time.Time
}
