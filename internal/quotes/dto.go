package quotes

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreateRequest is the payload for creating or updating a quote. Totals sent
// by the caller are ignored and recomputed.
type CreateRequest struct {
	ClientID     int64           `json:"clientId" validate:"required,gt=0"`
	Items        []ItemInput     `json:"items" validate:"dive"`
	PackageIDs   []int64         `json:"packageIds" validate:"dive,gt=0"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountType string          `json:"discountType"`
	Notes        string          `json:"notes" validate:"max=5000"`
	ValidUntil   string          `json:"validUntil" validate:"omitempty,datetime=2006-01-02"`
}

// ItemInput is a requested quote line.
type ItemInput struct {
	ServiceID   *int64          `json:"serviceId,omitempty"`
	PackageID   *int64          `json:"packageId,omitempty"`
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=1000"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity" validate:"gte=1,lte=1000"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

func (r CreateRequest) normalized() CreateRequest {
	r.Notes = strings.TrimSpace(r.Notes)
	r.ValidUntil = strings.TrimSpace(r.ValidUntil)
	r.Discount = r.Discount.Round(2)
	items := make([]ItemInput, len(r.Items))
	for i, item := range r.Items {
		item.Name = strings.TrimSpace(item.Name)
		item.Description = strings.TrimSpace(item.Description)
		item.UnitPrice = item.UnitPrice.Round(2)
		items[i] = item
	}
	r.Items = items
	return r
}

// ListFilter narrows the quote list.
type ListFilter struct {
	Status Status
	Search string
	Limit  int
	Offset int
}
