package view

import (
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solkant/solkant/internal/pricing"
)

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Funcs returns the helpers available in every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"money":      Money,
		"percent":    pricing.FormatPercent,
		"formatDate": FormatDate,
		"longDate":   LongDate,
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"statusLabel": StatusLabel,
		"statusClass": StatusClass,
		"add":         func(a, b int) int { return a + b },
		"deref": func(p *time.Time) time.Time {
			if p == nil {
				return time.Time{}
			}
			return *p
		},
		"decimalInput": func(d decimal.Decimal) string { return d.StringFixed(pricing.MoneyPlaces) },
		"dict":         Dict,
	}
}

// Dict builds a map from alternating keys and values so partials can take
// several arguments.
func Dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}

// Money formats an amount in euros the French way.
func Money(v any) string {
	switch amount := v.(type) {
	case decimal.Decimal:
		return pricing.FormatEUR(amount)
	case *decimal.Decimal:
		if amount == nil {
			return ""
		}
		return pricing.FormatEUR(*amount)
	default:
		return fmt.Sprint(v)
	}
}

// FormatDate renders a date as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

// LongDate renders a date as "5 mars 2025".
func LongDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

// StatusLabel translates a quote status.
func StatusLabel(status any) string {
	switch fmt.Sprint(status) {
	case "DRAFT":
		return "Brouillon"
	case "SENT":
		return "Envoyé"
	case "ACCEPTED":
		return "Accepté"
	case "REJECTED":
		return "Refusé"
	default:
		return fmt.Sprint(status)
	}
}

// StatusClass maps a quote status to a badge CSS class.
func StatusClass(status any) string {
	switch fmt.Sprint(status) {
	case "SENT":
		return "badge badge-info"
	case "ACCEPTED":
		return "badge badge-success"
	case "REJECTED":
		return "badge badge-danger"
	default:
		return "badge"
	}
}
