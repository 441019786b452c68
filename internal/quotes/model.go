package quotes

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solkant/solkant/internal/pricing"
)

// Status is the lifecycle state of a quote.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusSent     Status = "SENT"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// DeletedClientLabel is shown in place of a client that no longer exists.
const DeletedClientLabel = "Client supprimé"

// Quote is a priced estimate issued by a business to a client.
type Quote struct {
	ID           int64                `json:"id"`
	BusinessID   int64                `json:"businessId"`
	ClientID     *int64               `json:"clientId"`
	Client       *ClientRef           `json:"client,omitempty"`
	QuoteNumber  string               `json:"quoteNumber"`
	Status       Status               `json:"status"`
	Items        []Item               `json:"items"`
	Subtotal     decimal.Decimal      `json:"subtotal"`
	Discount     decimal.Decimal      `json:"discount"`
	DiscountType pricing.DiscountType `json:"discountType"`
	Total        decimal.Decimal      `json:"total"`
	Notes        string               `json:"notes"`
	ValidUntil   *time.Time           `json:"validUntil,omitempty"`
	SentAt       *time.Time           `json:"sentAt,omitempty"`
	CreatedBy    *int64               `json:"createdBy,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// ClientRef is the part of the client a quote displays.
type ClientRef struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// Item is a quote line.
type Item struct {
	ID          int64           `json:"id"`
	ServiceID   *int64          `json:"serviceId,omitempty"`
	PackageID   *int64          `json:"packageId,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// ClientName returns the client's full name or the deleted-client label.
func (q Quote) ClientName() string {
	if q.Client == nil {
		return DeletedClientLabel
	}
	return strings.TrimSpace(q.Client.FirstName + " " + q.Client.LastName)
}

// ClientEmail returns the client's email, empty when unknown.
func (q Quote) ClientEmail() string {
	if q.Client == nil {
		return ""
	}
	return q.Client.Email
}

// Editable reports whether the quote may still be changed or deleted.
func (q Quote) Editable() bool {
	return q.Status == StatusDraft
}

func (q Quote) hasPackageLine() bool {
	for _, item := range q.Items {
		if item.PackageID != nil {
			return true
		}
	}
	return false
}

// EffectiveDiscount is the discount amount actually subtracted.
func (q Quote) EffectiveDiscount() decimal.Decimal {
	return q.Subtotal.Sub(q.Total)
}

// Summary is the created-quote payload returned to API callers.
type Summary struct {
	ID          int64           `json:"id"`
	QuoteNumber string          `json:"quoteNumber"`
	Status      Status          `json:"status"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// Summarize projects q into its API summary.
func (q Quote) Summarize() Summary {
	return Summary{
		ID:          q.ID,
		QuoteNumber: q.QuoteNumber,
		Status:      q.Status,
		Subtotal:    q.Subtotal,
		Discount:    q.EffectiveDiscount(),
		Total:       q.Total,
	}
}
