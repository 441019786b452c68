package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PackageService is one service bundled in a package.
type PackageService struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// Package is a bundle of services with its own discount.
type Package struct {
	Name         string
	Services     []PackageService
	Discount     decimal.Decimal
	DiscountType DiscountType
}

// Expansion is the result of adding a package to a quote: one line item at the
// undiscounted price plus the discount amount to surface at quote level.
type Expansion struct {
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int
	Discount    decimal.Decimal
}

// GrossPrice is the sum of the bundled service prices, before discount.
func (p Package) GrossPrice() decimal.Decimal {
	gross := decimal.Zero
	for _, svc := range p.Services {
		gross = gross.Add(LineTotal(svc.Price, svc.Quantity))
	}
	return gross
}

// DiscountAmount is the package discount expressed as a currency amount.
func (p Package) DiscountAmount() decimal.Decimal {
	return EffectiveDiscount(p.GrossPrice(), p.Discount, p.DiscountType)
}

// NetPrice is what the client pays for the package.
func (p Package) NetPrice() decimal.Decimal {
	return p.GrossPrice().Sub(p.DiscountAmount())
}

// Expand turns the package into a quote line. The item keeps the gross price;
// the discount is returned separately and never folded into the unit price.
func (p Package) Expand() Expansion {
	return Expansion{
		Name:        p.Name,
		Description: p.describe(),
		UnitPrice:   p.GrossPrice(),
		Quantity:    1,
		Discount:    p.DiscountAmount(),
	}
}

func (p Package) describe() string {
	if len(p.Services) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Services))
	for _, svc := range p.Services {
		if svc.Quantity > 1 {
			parts = append(parts, fmt.Sprintf("%s x%d", svc.Name, svc.Quantity))
			continue
		}
		parts = append(parts, svc.Name)
	}
	return "Forfait : " + strings.Join(parts, ", ")
}
