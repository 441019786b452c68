// Package pricing computes quote amounts with fixed-point decimals.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a discount magnitude is interpreted.
type DiscountType string

const (
	// DiscountFixed is an absolute currency reduction.
	DiscountFixed DiscountType = "FIXED"
	// DiscountPercentage is a 0-100 reduction applied to the subtotal.
	DiscountPercentage DiscountType = "PERCENTAGE"
)

// MoneyPlaces is the number of decimal places kept for amounts.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ErrInvalidDiscountType is returned for unknown discount types.
var ErrInvalidDiscountType = errors.New("pricing: invalid discount type")

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountFixed || t == DiscountPercentage
}

// ParseDiscountType normalises user input; empty input defaults to FIXED.
func ParseDiscountType(raw string) (DiscountType, error) {
	value := DiscountType(strings.ToUpper(strings.TrimSpace(raw)))
	if value == "" {
		return DiscountFixed, nil
	}
	if !value.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDiscountType, raw)
	}
	return value, nil
}

// Line is the priced part of a quote item.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Total returns unitPrice * quantity rounded to cents.
func (l Line) Total() decimal.Decimal {
	return LineTotal(l.UnitPrice, l.Quantity)
}

// Totals is the computed money summary of a quote.
type Totals struct {
	LineTotals []decimal.Decimal
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
}

// LineTotal multiplies a unit price by an integer quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(MoneyPlaces)
}

// EffectiveDiscount converts a discount value and type into an amount within [0, subtotal].
func EffectiveDiscount(subtotal, discount decimal.Decimal, discountType DiscountType) decimal.Decimal {
	if subtotal.Sign() <= 0 || discount.Sign() <= 0 {
		return decimal.Zero
	}
	amount := discount
	if discountType == DiscountPercentage {
		amount = subtotal.Mul(discount).Div(hundred)
	}
	amount = amount.Round(MoneyPlaces)
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

// Compute derives line totals, subtotal, effective discount and total.
func Compute(lines []Line, discount decimal.Decimal, discountType DiscountType) Totals {
	totals := Totals{
		LineTotals: make([]decimal.Decimal, len(lines)),
		Subtotal:   decimal.Zero,
	}
	for i, line := range lines {
		lineTotal := line.Total()
		totals.LineTotals[i] = lineTotal
		totals.Subtotal = totals.Subtotal.Add(lineTotal)
	}
	totals.Discount = EffectiveDiscount(totals.Subtotal, discount, discountType)
	totals.Total = totals.Subtotal.Sub(totals.Discount)
	return totals
}

// ValidateDiscount checks the raw discount input before computation.
// It returns a French message suitable for a form field, or "".
func ValidateDiscount(discount decimal.Decimal, discountType DiscountType) string {
	if !discountType.Valid() {
		return "Type de remise invalide"
	}
	if discount.IsNegative() {
		return "La remise ne peut pas être négative"
	}
	if discountType == DiscountPercentage && discount.GreaterThan(hundred) {
		return "La remise doit être comprise entre 0 et 100 %"
	}
	return ""
}
