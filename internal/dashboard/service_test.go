package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/platform/cache"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
)

type stubRepository struct {
	clients   map[int64]int
	calls     atomic.Int32
	failQuery bool
	from, to  time.Time
}

func (s *stubRepository) CountClients(_ context.Context, businessID int64) (int, error) {
	s.calls.Add(1)
	return s.clients[businessID], nil
}

func (s *stubRepository) CountServices(context.Context, int64) (int, error) { return 4, nil }

func (s *stubRepository) QuotesByStatus(context.Context, int64) (map[quotes.Status]int, error) {
	if s.failQuery {
		return nil, errors.New("db down")
	}
	return map[quotes.Status]int{quotes.StatusDraft: 2, quotes.StatusSent: 1, quotes.StatusAccepted: 3}, nil
}

func (s *stubRepository) AcceptedTotal(_ context.Context, _ int64, from, to time.Time) (decimal.Decimal, error) {
	s.from, s.to = from, to
	return decimal.RequireFromString("450.50"), nil
}

func (s *stubRepository) LatestQuotes(context.Context, int64, int) ([]RecentQuote, error) {
	return []RecentQuote{{ID: 1, QuoteNumber: "DEVIS-2025-003", Status: quotes.StatusSent, ClientName: quotes.DeletedClientLabel, Total: decimal.NewFromInt(99)}}, nil
}

func fixedNow() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }

func TestStatsAggregatesConcurrently(t *testing.T) {
	repo := &stubRepository{clients: map[int64]int{10: 12}}
	svc := NewService(repo, nil, time.UTC)
	svc.now = fixedNow

	stats, err := svc.Stats(context.Background(), shared.Tenant{UserID: 1, BusinessID: 10})
	require.NoError(t, err)

	assert.Equal(t, 12, stats.Clients)
	assert.Equal(t, 4, stats.Services)
	assert.Equal(t, 6, stats.TotalQuotes())
	assert.Equal(t, 3, stats.QuoteCount("ACCEPTED"))
	assert.Equal(t, "450.5", stats.AcceptedMonth.String())
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, "Client supprimé", stats.Recent[0].ClientName)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), repo.from)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), repo.to)
}

func TestStatsPropagatesErrors(t *testing.T) {
	svc := NewService(&stubRepository{failQuery: true}, nil, nil)
	_, err := svc.Stats(context.Background(), shared.Tenant{UserID: 1, BusinessID: 10})
	assert.Error(t, err)
}

func TestStatsCachedUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	versioned := cache.NewVersioned(client, "solkant", time.Minute)
	repo := &stubRepository{clients: map[int64]int{10: 12, 20: 1}}
	svc := NewService(repo, versioned, time.UTC)
	svc.now = fixedNow
	ctx := context.Background()
	tenant := shared.Tenant{UserID: 1, BusinessID: 10}

	_, err := svc.Stats(ctx, tenant)
	require.NoError(t, err)
	_, err = svc.Stats(ctx, tenant)
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.calls.Load())

	other, err := svc.Stats(ctx, shared.Tenant{UserID: 2, BusinessID: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Clients)
	assert.EqualValues(t, 2, repo.calls.Load())

	repo.clients[10] = 13
	require.NoError(t, versioned.Bump(ctx, 10))
	stats, err := svc.Stats(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 13, stats.Clients)
	assert.EqualValues(t, 3, repo.calls.Load())
}
