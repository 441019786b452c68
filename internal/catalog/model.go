package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/solkant/solkant/internal/pricing"
)

// Service is a priced treatment offered by a business.
type Service struct {
	ID              int64           `json:"id"`
	BusinessID      int64           `json:"businessId"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"durationMinutes"`
	Category        string          `json:"category"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Package bundles services sold together with a discount.
type Package struct {
	ID           int64                `json:"id"`
	BusinessID   int64                `json:"businessId"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Discount     decimal.Decimal      `json:"discount"`
	DiscountType pricing.DiscountType `json:"discountType"`
	IsActive     bool                 `json:"isActive"`
	Items        []PackageItem        `json:"items"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// PackageItem is one service of a package with its current price.
type PackageItem struct {
	ServiceID   int64           `json:"serviceId"`
	ServiceName string          `json:"serviceName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

// Pricing converts the package for price computation.
func (p Package) Pricing() pricing.Package {
	out := pricing.Package{
		Name:         p.Name,
		Discount:     p.Discount,
		DiscountType: p.DiscountType,
		Services:     make([]pricing.PackageService, 0, len(p.Items)),
	}
	for _, item := range p.Items {
		out.Services = append(out.Services, pricing.PackageService{Name: item.ServiceName, Price: item.Price, Quantity: item.Quantity})
	}
	return out
}

// GrossPrice is the undiscounted price of the package.
func (p Package) GrossPrice() decimal.Decimal { return p.Pricing().GrossPrice() }

// DiscountAmount is the discount in euros.
func (p Package) DiscountAmount() decimal.Decimal { return p.Pricing().DiscountAmount() }

// NetPrice is the discounted price of the package.
func (p Package) NetPrice() decimal.Decimal { return p.Pricing().NetPrice() }
