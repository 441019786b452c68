package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ServiceInput is the create/update payload for a service.
type ServiceInput struct {
	Name            string          `json:"name" validate:"required,max=120"`
	Description     string          `json:"description" validate:"max=1000"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"durationMinutes" validate:"gte=0,lte=1440"`
	Category        string          `json:"category" validate:"max=60"`
	IsActive        bool            `json:"isActive"`
}

func (in ServiceInput) normalized() ServiceInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Price = in.Price.Round(2)
	return in
}

// ServiceFilter narrows the service list.
type ServiceFilter struct {
	Search     string
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// PackageInput is the create/update payload for a package.
type PackageInput struct {
	Name         string             `json:"name" validate:"required,max=120"`
	Description  string             `json:"description" validate:"max=1000"`
	Discount     decimal.Decimal    `json:"discount"`
	DiscountType string             `json:"discountType"`
	IsActive     bool               `json:"isActive"`
	Items        []PackageItemInput `json:"items" validate:"min=1,dive"`
}

// PackageItemInput references a service of the same business.
type PackageItemInput struct {
	ServiceID int64 `json:"serviceId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=1,lte=100"`
}

func (in PackageInput) normalized() PackageInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Discount = in.Discount.Round(2)
	return in
}
