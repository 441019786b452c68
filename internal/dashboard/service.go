// Package dashboard computes the home page figures of a business.
package dashboard

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
)

const recentLimit = 5

// RecentQuote is a row of the latest quotes list.
type RecentQuote struct {
	ID          int64           `json:"id"`
	QuoteNumber string          `json:"quoteNumber"`
	Status      quotes.Status   `json:"status"`
	ClientName  string          `json:"clientName"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Stats is the dashboard payload.
type Stats struct {
	Clients        int                   `json:"clients"`
	Services       int                   `json:"services"`
	QuotesByStatus map[quotes.Status]int `json:"quotesByStatus"`
	AcceptedMonth  decimal.Decimal       `json:"acceptedMonth"`
	Recent         []RecentQuote         `json:"recent"`
}

// QuoteCount returns the number of quotes in status.
func (s Stats) QuoteCount(status string) int {
	return s.QuotesByStatus[quotes.Status(status)]
}

// TotalQuotes sums every status.
func (s Stats) TotalQuotes() int {
	n := 0
	for _, c := range s.QuotesByStatus {
		n += c
	}
	return n
}

// Cache stores computed stats per tenant version.
type Cache interface {
	BuildKey(ctx context.Context, tenantID int64, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service loads dashboard stats.
type Service struct {
	repo     Repository
	cache    Cache
	location *time.Location
	now      func() time.Time
}

// NewService constructs a Service. A nil cache computes stats on every call.
func NewService(repo Repository, cache Cache, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{repo: repo, cache: cache, location: location, now: time.Now}
}

// Stats returns the tenant's figures, cached until the next mutation bumps
// the tenant version.
func (s *Service) Stats(ctx context.Context, tenant shared.Tenant) (Stats, error) {
	now := s.now().In(s.location)
	month := now.Format("2006-01")
	loader := func(ctx context.Context) (any, error) {
		return s.compute(ctx, tenant.BusinessID, now)
	}
	if s.cache == nil {
		return s.compute(ctx, tenant.BusinessID, now)
	}
	key, err := s.cache.BuildKey(ctx, tenant.BusinessID, "dashboard", month)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := s.cache.FetchJSON(ctx, key, &stats, loader); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *Service) compute(ctx context.Context, businessID int64, now time.Time) (Stats, error) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location)
	to := from.AddDate(0, 1, 0)

	var stats Stats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.CountClients(ctx, businessID)
		stats.Clients = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountServices(ctx, businessID)
		stats.Services = n
		return err
	})
	g.Go(func() error {
		byStatus, err := s.repo.QuotesByStatus(ctx, businessID)
		stats.QuotesByStatus = byStatus
		return err
	})
	g.Go(func() error {
		total, err := s.repo.AcceptedTotal(ctx, businessID, from, to)
		stats.AcceptedMonth = total
		return err
	})
	g.Go(func() error {
		recent, err := s.repo.LatestQuotes(ctx, businessID, recentLimit)
		stats.Recent = recent
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func clientName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
