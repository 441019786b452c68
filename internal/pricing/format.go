package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var frenchPrinter = message.NewPrinter(language.French)

// FormatEUR renders an amount the way French invoices show it, e.g. "1 234,50 €".
func FormatEUR(amount decimal.Decimal) string {
	return frenchPrinter.Sprintf("%v €", number.Decimal(amount.Round(MoneyPlaces).InexactFloat64(), number.Scale(MoneyPlaces)))
}

// FormatPercent renders a percentage with up to two decimals, e.g. "12,5 %".
func FormatPercent(value decimal.Decimal) string {
	return frenchPrinter.Sprintf("%v %%", number.Decimal(value.InexactFloat64(), number.MaxFractionDigits(MoneyPlaces)))
}
