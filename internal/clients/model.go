package clients

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a customer of a business.
type Client struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"businessId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FullName returns "First Last".
func (c Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// QuoteSummary is a quote as listed on the client page.
type QuoteSummary struct {
	ID          int64
	QuoteNumber string
	Status      string
	Total       decimal.Decimal
	CreatedAt   time.Time
}
