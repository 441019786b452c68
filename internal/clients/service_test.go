package clients

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/shared"
)

type mockRepository struct {
	nextID  int64
	clients map[int64]*Client
	quotes  map[int64][]QuoteSummary
	err     error
}

func newMockRepository() *mockRepository {
	return &mockRepository{clients: map[int64]*Client{}, quotes: map[int64][]QuoteSummary{}}
}

func (m *mockRepository) Get(ctx context.Context, businessID, id int64) (*Client, error) {
	c, ok := m.clients[id]
	if !ok || c.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *mockRepository) List(ctx context.Context, businessID int64, filter ListFilter) ([]Client, int, error) {
	var out []Client
	for _, c := range m.clients {
		if c.BusinessID != businessID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.FullName()), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(ctx context.Context, businessID int64, in Input) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	m.clients[m.nextID] = &Client{ID: m.nextID, BusinessID: businessID, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email}
	return m.nextID, nil
}

func (m *mockRepository) Update(ctx context.Context, businessID, id int64, in Input) error {
	c, ok := m.clients[id]
	if !ok || c.BusinessID != businessID {
		return shared.ErrNotFound
	}
	c.FirstName, c.LastName, c.Email = in.FirstName, in.LastName, in.Email
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, businessID, id int64) error {
	c, ok := m.clients[id]
	if !ok || c.BusinessID != businessID {
		return shared.ErrNotFound
	}
	delete(m.clients, id)
	return nil
}

func (m *mockRepository) Quotes(ctx context.Context, businessID, clientID int64) ([]QuoteSummary, error) {
	return m.quotes[clientID], nil
}

type bumpRecorder struct{ tenants []int64 }

func (b *bumpRecorder) Bump(ctx context.Context, tenantID int64) error {
	b.tenants = append(b.tenants, tenantID)
	return nil
}

var tenantA = shared.Tenant{UserID: 1, BusinessID: 10}
var tenantB = shared.Tenant{UserID: 2, BusinessID: 20}

func TestCreateNormalisesAndInvalidates(t *testing.T) {
	repo := newMockRepository()
	bumps := &bumpRecorder{}
	svc := NewService(repo, bumps, nil, nil)

	c, err := svc.Create(context.Background(), tenantA, Input{FirstName: " Léa ", LastName: "Martin", Email: " LEA@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, "Léa Martin", c.FullName())
	assert.Equal(t, "lea@example.com", c.Email)
	assert.Equal(t, int64(10), c.BusinessID)
	assert.Equal(t, []int64{10}, bumps.tenants)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMockRepository(), nil, nil, nil)

	_, err := svc.Create(context.Background(), tenantA, Input{FirstName: "Léa", Email: "not-an-email"})
	require.Error(t, err)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "lastName")
	assert.Contains(t, verr.Fields, "email")
}

func TestTenantIsolation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil, nil)

	c, err := svc.Create(context.Background(), tenantA, Input{FirstName: "Léa", LastName: "Martin"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), tenantB, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Update(context.Background(), tenantB, c.ID, Input{FirstName: "X", LastName: "Y"})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = svc.Delete(context.Background(), tenantB, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, total, err := svc.List(context.Background(), tenantB, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestUpdateAndDelete(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil, nil)
	c, err := svc.Create(context.Background(), tenantA, Input{FirstName: "Léa", LastName: "Martin"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), tenantA, c.ID, Input{FirstName: "Léa", LastName: "Durand"})
	require.NoError(t, err)
	assert.Equal(t, "Durand", updated.LastName)

	require.NoError(t, svc.Delete(context.Background(), tenantA, c.ID))
	_, err = svc.Get(context.Background(), tenantA, c.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRepositoryError(t *testing.T) {
	repo := newMockRepository()
	repo.err = errors.New("boom")
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), tenantA, Input{FirstName: "Léa", LastName: "Martin"})
	assert.ErrorContains(t, err, "create client")
}
