// Package documents renders quotes as HTML previews and PDF files.
package documents

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/quotes"
)

// QuoteDocument is the printable projection of a quote.
type QuoteDocument struct {
	Issuer        Issuer
	Number        string
	Status        quotes.Status
	IssuedAt      time.Time
	ValidUntil    *time.Time
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	ClientAddress string
	Lines         []Line
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	DiscountLabel string
	Total         decimal.Decimal
	Notes         string
}

// Issuer is the business header and legal footer.
type Issuer struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	Siret      string
	VATMention string
	Footer     string
}

// Line is a printed quote line.
type Line struct {
	Name        string
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int
	Total       decimal.Decimal
}

// HasDiscount reports whether a discount line is printed.
func (d QuoteDocument) HasDiscount() bool {
	return d.Discount.IsPositive()
}

// Build projects a quote and its issuer into a document. It reads only and
// never changes the quote.
func Build(b *businesses.Business, q *quotes.Quote) QuoteDocument {
	doc := QuoteDocument{
		Number:     q.QuoteNumber,
		Status:     q.Status,
		IssuedAt:   q.CreatedAt,
		ValidUntil: q.ValidUntil,
		ClientName: q.ClientName(),
		Subtotal:   q.Subtotal,
		Discount:   q.EffectiveDiscount(),
		Total:      q.Total,
		Notes:      q.Notes,
	}
	if b != nil {
		doc.Issuer = Issuer{
			Name:       b.Name,
			Email:      b.Email,
			Phone:      b.Phone,
			Address:    b.Address,
			Siret:      b.Siret,
			VATMention: b.VATMention,
			Footer:     b.QuoteFooter,
		}
	}
	if q.Client != nil {
		doc.ClientEmail = q.Client.Email
		doc.ClientPhone = q.Client.Phone
		doc.ClientAddress = q.Client.Address
	}
	for _, item := range q.Items {
		doc.Lines = append(doc.Lines, Line{
			Name:        item.Name,
			Description: item.Description,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Total:       item.LineTotal,
		})
	}
	doc.DiscountLabel = discountLabel(q)
	return doc
}

func discountLabel(q *quotes.Quote) string {
	if q.DiscountType == pricing.DiscountPercentage && q.Discount.IsPositive() {
		return "Remise (" + pricing.FormatPercent(q.Discount) + ")"
	}
	for _, item := range q.Items {
		if item.PackageID != nil {
			return "Remise forfait"
		}
	}
	return "Remise"
}

// FileName is the attachment name of the quote PDF.
func (d QuoteDocument) FileName() string {
	return strings.ReplaceAll(d.Number, "/", "-") + ".pdf"
}
