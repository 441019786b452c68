package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
)

type mockRepository struct {
	nextID       int64
	services     map[int64]*Service
	packages     map[int64]*Package
	items        map[int64][]PackageItemInput
	replaceErr   error
	txRolledBack bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{services: map[int64]*Service{}, packages: map[int64]*Package{}, items: map[int64][]PackageItemInput{}}
}

// WithTx snapshots package state and restores it when fn fails.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	pkgs := make(map[int64]*Package, len(m.packages))
	for k, v := range m.packages {
		clone := *v
		pkgs[k] = &clone
	}
	items := make(map[int64][]PackageItemInput, len(m.items))
	for k, v := range m.items {
		items[k] = append([]PackageItemInput(nil), v...)
	}
	if err := fn(ctx, m); err != nil {
		m.packages, m.items = pkgs, items
		m.txRolledBack = true
		return err
	}
	return nil
}

func (m *mockRepository) GetService(ctx context.Context, businessID, id int64) (*Service, error) {
	s, ok := m.services[id]
	if !ok || s.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *mockRepository) ListServices(ctx context.Context, businessID int64, filter ServiceFilter) ([]Service, int, error) {
	var out []Service
	for _, s := range m.services {
		if s.BusinessID != businessID || (filter.ActiveOnly && !s.IsActive) {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockRepository) Categories(ctx context.Context, businessID int64) ([]string, error) {
	return nil, nil
}

func (m *mockRepository) CreateService(ctx context.Context, businessID int64, in ServiceInput) (int64, error) {
	m.nextID++
	m.services[m.nextID] = &Service{ID: m.nextID, BusinessID: businessID, Name: in.Name, Price: in.Price, IsActive: in.IsActive, Category: in.Category}
	return m.nextID, nil
}

func (m *mockRepository) UpdateService(ctx context.Context, businessID, id int64, in ServiceInput) error {
	s, ok := m.services[id]
	if !ok || s.BusinessID != businessID {
		return shared.ErrNotFound
	}
	s.Name, s.Price, s.IsActive = in.Name, in.Price, in.IsActive
	return nil
}

func (m *mockRepository) DeleteService(ctx context.Context, businessID, id int64) error {
	s, ok := m.services[id]
	if !ok || s.BusinessID != businessID {
		return shared.ErrNotFound
	}
	delete(m.services, id)
	return nil
}

func (m *mockRepository) CountOwnedServices(ctx context.Context, businessID int64, ids []int64) (int, error) {
	n := 0
	for _, id := range ids {
		if s, ok := m.services[id]; ok && s.BusinessID == businessID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepository) GetPackage(ctx context.Context, businessID, id int64) (*Package, error) {
	p, ok := m.packages[id]
	if !ok || p.BusinessID != businessID {
		return nil, shared.ErrNotFound
	}
	clone := *p
	clone.Items = nil
	for _, item := range m.items[id] {
		svc := m.services[item.ServiceID]
		clone.Items = append(clone.Items, PackageItem{ServiceID: svc.ID, ServiceName: svc.Name, Price: svc.Price, Quantity: item.Quantity})
	}
	return &clone, nil
}

func (m *mockRepository) ListPackages(ctx context.Context, businessID int64, activeOnly bool) ([]Package, error) {
	var out []Package
	for id, p := range m.packages {
		if p.BusinessID != businessID || (activeOnly && !p.IsActive) {
			continue
		}
		full, _ := m.GetPackage(ctx, businessID, id)
		out = append(out, *full)
	}
	return out, nil
}

func (m *mockRepository) CreatePackage(ctx context.Context, businessID int64, in PackageInput, discountType pricing.DiscountType) (int64, error) {
	m.nextID++
	m.packages[m.nextID] = &Package{ID: m.nextID, BusinessID: businessID, Name: in.Name, Discount: in.Discount, DiscountType: discountType, IsActive: in.IsActive}
	return m.nextID, nil
}

func (m *mockRepository) UpdatePackage(ctx context.Context, businessID, id int64, in PackageInput, discountType pricing.DiscountType) error {
	p, ok := m.packages[id]
	if !ok || p.BusinessID != businessID {
		return shared.ErrNotFound
	}
	p.Name, p.Discount, p.DiscountType = in.Name, in.Discount, discountType
	return nil
}

func (m *mockRepository) ReplacePackageItems(ctx context.Context, packageID int64, items []PackageItemInput) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.items[packageID] = append([]PackageItemInput(nil), items...)
	return nil
}

func (m *mockRepository) DeletePackage(ctx context.Context, businessID, id int64) error {
	p, ok := m.packages[id]
	if !ok || p.BusinessID != businessID {
		return shared.ErrNotFound
	}
	delete(m.packages, id)
	delete(m.items, id)
	return nil
}

var (
	tenantA = shared.Tenant{UserID: 1, BusinessID: 10}
	tenantB = shared.Tenant{UserID: 2, BusinessID: 20}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateServiceValidation(t *testing.T) {
	mgr := NewManager(newMockRepository(), nil, nil)

	_, err := mgr.CreateService(context.Background(), tenantA, ServiceInput{Name: "", Price: dec("-1")})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
	assert.Equal(t, "Le prix ne peut pas être négatif", verr.Fields["price"])
}

func TestCreateServiceRoundsPrice(t *testing.T) {
	mgr := NewManager(newMockRepository(), nil, nil)

	svc, err := mgr.CreateService(context.Background(), tenantA, ServiceInput{Name: " Soin visage ", Price: dec("59.999"), IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "Soin visage", svc.Name)
	assert.Equal(t, "60.00", svc.Price.StringFixed(2))
}

func TestActiveServicesHidesInactive(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, nil, nil)
	_, err := mgr.CreateService(context.Background(), tenantA, ServiceInput{Name: "Actif", Price: dec("10"), IsActive: true})
	require.NoError(t, err)
	_, err = mgr.CreateService(context.Background(), tenantA, ServiceInput{Name: "Archivé", Price: dec("10")})
	require.NoError(t, err)

	list, err := mgr.ActiveServices(context.Background(), tenantA)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Actif", list[0].Name)
}

func seedServices(t *testing.T, mgr *Manager, tenant shared.Tenant) (int64, int64) {
	t.Helper()
	a, err := mgr.CreateService(context.Background(), tenant, ServiceInput{Name: "Soin visage", Price: dec("60"), IsActive: true})
	require.NoError(t, err)
	b, err := mgr.CreateService(context.Background(), tenant, ServiceInput{Name: "Manucure", Price: dec("25"), IsActive: true})
	require.NoError(t, err)
	return a.ID, b.ID
}

func TestCreatePackagePricing(t *testing.T) {
	mgr := NewManager(newMockRepository(), nil, nil)
	a, b := seedServices(t, mgr, tenantA)

	pkg, err := mgr.CreatePackage(context.Background(), tenantA, PackageInput{
		Name:         "Rituel",
		Discount:     dec("10"),
		DiscountType: "percentage",
		IsActive:     true,
		Items:        []PackageItemInput{{ServiceID: a, Quantity: 1}, {ServiceID: b, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.DiscountPercentage, pkg.DiscountType)
	assert.Equal(t, "110.00", pkg.GrossPrice().StringFixed(2))
	assert.Equal(t, "11.00", pkg.DiscountAmount().StringFixed(2))
	assert.Equal(t, "99.00", pkg.NetPrice().StringFixed(2))
}

func TestCreatePackageRejectsForeignServices(t *testing.T) {
	mgr := NewManager(newMockRepository(), nil, nil)
	foreign, _ := seedServices(t, mgr, tenantB)

	_, err := mgr.CreatePackage(context.Background(), tenantA, PackageInput{
		Name:  "Rituel",
		Items: []PackageItemInput{{ServiceID: foreign, Quantity: 1}},
	})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "items")
}

func TestCreatePackageValidation(t *testing.T) {
	mgr := NewManager(newMockRepository(), nil, nil)
	a, _ := seedServices(t, mgr, tenantA)

	_, err := mgr.CreatePackage(context.Background(), tenantA, PackageInput{
		Name:         "Rituel",
		Discount:     dec("150"),
		DiscountType: "PERCENTAGE",
		Items:        []PackageItemInput{{ServiceID: a, Quantity: 1}, {ServiceID: a, Quantity: 1}},
	})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "La remise doit être comprise entre 0 et 100 %", verr.Fields["discount"])
	assert.Contains(t, verr.Fields, "items[1].serviceId")

	_, err = mgr.CreatePackage(context.Background(), tenantA, PackageInput{Name: "Vide"})
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "items")
}

func TestUpdatePackageRollsBackOnItemFailure(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, nil, nil)
	a, b := seedServices(t, mgr, tenantA)
	pkg, err := mgr.CreatePackage(context.Background(), tenantA, PackageInput{
		Name:  "Duo",
		Items: []PackageItemInput{{ServiceID: a, Quantity: 1}},
	})
	require.NoError(t, err)

	repo.replaceErr = errors.New("insert failed")
	_, err = mgr.UpdatePackage(context.Background(), tenantA, pkg.ID, PackageInput{
		Name:  "Duo renommé",
		Items: []PackageItemInput{{ServiceID: b, Quantity: 3}},
	})
	require.Error(t, err)
	assert.True(t, repo.txRolledBack)

	got, err := mgr.GetPackage(context.Background(), tenantA, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Duo", got.Name)
	require.Len(t, got.Items, 1)
	assert.Equal(t, a, got.Items[0].ServiceID)
}

func TestPackageTenantIsolation(t *testing.T) {
	mgr := NewManager(newMockRepository(), nil, nil)
	a, _ := seedServices(t, mgr, tenantA)
	pkg, err := mgr.CreatePackage(context.Background(), tenantA, PackageInput{Name: "Solo", Items: []PackageItemInput{{ServiceID: a, Quantity: 1}}})
	require.NoError(t, err)

	_, err = mgr.GetPackage(context.Background(), tenantB, pkg.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, mgr.DeletePackage(context.Background(), tenantB, pkg.ID), shared.ErrNotFound)
}
