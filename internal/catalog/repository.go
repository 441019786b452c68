package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
)

// Repository persists services and packages. Every method is scoped by businessID.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetService(ctx context.Context, businessID, id int64) (*Service, error)
	ListServices(ctx context.Context, businessID int64, filter ServiceFilter) ([]Service, int, error)
	Categories(ctx context.Context, businessID int64) ([]string, error)
	CreateService(ctx context.Context, businessID int64, in ServiceInput) (int64, error)
	UpdateService(ctx context.Context, businessID, id int64, in ServiceInput) error
	DeleteService(ctx context.Context, businessID, id int64) error
	CountOwnedServices(ctx context.Context, businessID int64, ids []int64) (int, error)

	GetPackage(ctx context.Context, businessID, id int64) (*Package, error)
	ListPackages(ctx context.Context, businessID int64, activeOnly bool) ([]Package, error)
	CreatePackage(ctx context.Context, businessID int64, in PackageInput, discountType pricing.DiscountType) (int64, error)
	UpdatePackage(ctx context.Context, businessID, id int64, in PackageInput, discountType pricing.DiscountType) error
	ReplacePackageItems(ctx context.Context, packageID int64, items []PackageItemInput) error
	DeletePackage(ctx context.Context, businessID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{pool: r.pool, db: tx})
	})
}

const serviceColumns = `id, business_id, name, description, price, duration_minutes, category, is_active, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }, s *Service) error {
	var price pgtype.Numeric
	if err := row.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Description, &price, &s.DurationMinutes, &s.Category, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return err
	}
	s.Price = db.Decimal(price)
	return nil
}

func (r *repository) GetService(ctx context.Context, businessID, id int64) (*Service, error) {
	var s Service
	err := scanService(r.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE business_id = $1 AND id = $2`, businessID, id), &s)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) ListServices(ctx context.Context, businessID int64, filter ServiceFilter) ([]Service, int, error) {
	conditions := []string{"business_id = $1"}
	args := []any{businessID}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%[1]d OR description ILIKE $%[1]d)", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM services "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM services %s ORDER BY category, name, id LIMIT $%d OFFSET $%d",
		serviceColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := scanService(rows, &s); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) Categories(ctx context.Context, businessID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT category FROM services WHERE business_id = $1 AND category <> '' ORDER BY category`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) CreateService(ctx context.Context, businessID int64, in ServiceInput) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO services (business_id, name, description, price, duration_minutes, category, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		businessID, in.Name, in.Description, db.Numeric(in.Price), in.DurationMinutes, in.Category, in.IsActive).Scan(&id)
	return id, err
}

func (r *repository) UpdateService(ctx context.Context, businessID, id int64, in ServiceInput) error {
	tag, err := r.db.Exec(ctx, `UPDATE services SET name = $3, description = $4, price = $5, duration_minutes = $6, category = $7, is_active = $8, updated_at = NOW()
WHERE business_id = $1 AND id = $2`,
		businessID, id, in.Name, in.Description, db.Numeric(in.Price), in.DurationMinutes, in.Category, in.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteService(ctx context.Context, businessID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE business_id = $1 AND id = $2`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) CountOwnedServices(ctx context.Context, businessID int64, ids []int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT id) FROM services WHERE business_id = $1 AND id = ANY($2)`, businessID, ids).Scan(&n)
	return n, err
}

const packageColumns = `id, business_id, name, description, discount, discount_type, is_active, created_at, updated_at`

func scanPackage(row interface{ Scan(...any) error }, p *Package) error {
	var (
		discount     pgtype.Numeric
		discountType string
	)
	if err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Description, &discount, &discountType, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.Discount = db.Decimal(discount)
	p.DiscountType = pricing.DiscountType(discountType)
	return nil
}

func (r *repository) GetPackage(ctx context.Context, businessID, id int64) (*Package, error) {
	var p Package
	err := scanPackage(r.db.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE business_id = $1 AND id = $2`, businessID, id), &p)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	items, err := r.packageItems(ctx, businessID, []int64{p.ID})
	if err != nil {
		return nil, err
	}
	p.Items = items[p.ID]
	return &p, nil
}

func (r *repository) ListPackages(ctx context.Context, businessID int64, activeOnly bool) ([]Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE business_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	rows, err := r.db.Query(ctx, query+` ORDER BY name, id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []Package
		ids []int64
	)
	for rows.Next() {
		var p Package
		if err := scanPackage(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := r.packageItems(ctx, businessID, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *repository) packageItems(ctx context.Context, businessID int64, packageIDs []int64) (map[int64][]PackageItem, error) {
	rows, err := r.db.Query(ctx, `SELECT pi.package_id, s.id, s.name, s.price, pi.quantity
FROM package_items pi
JOIN services s ON s.id = pi.service_id AND s.business_id = $1
WHERE pi.package_id = ANY($2)
ORDER BY pi.package_id, pi.position, pi.id`, businessID, packageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]PackageItem, len(packageIDs))
	for rows.Next() {
		var (
			packageID int64
			item      PackageItem
			price     pgtype.Numeric
		)
		if err := rows.Scan(&packageID, &item.ServiceID, &item.ServiceName, &price, &item.Quantity); err != nil {
			return nil, err
		}
		item.Price = db.Decimal(price)
		out[packageID] = append(out[packageID], item)
	}
	return out, rows.Err()
}

func (r *repository) CreatePackage(ctx context.Context, businessID int64, in PackageInput, discountType pricing.DiscountType) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO packages (business_id, name, description, discount, discount_type, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		businessID, in.Name, in.Description, db.Numeric(in.Discount), string(discountType), in.IsActive).Scan(&id)
	return id, err
}

func (r *repository) UpdatePackage(ctx context.Context, businessID, id int64, in PackageInput, discountType pricing.DiscountType) error {
	tag, err := r.db.Exec(ctx, `UPDATE packages SET name = $3, description = $4, discount = $5, discount_type = $6, is_active = $7, updated_at = NOW()
WHERE business_id = $1 AND id = $2`,
		businessID, id, in.Name, in.Description, db.Numeric(in.Discount), string(discountType), in.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplacePackageItems must run inside WithTx after the package ownership check.
func (r *repository) ReplacePackageItems(ctx context.Context, packageID int64, items []PackageItemInput) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM package_items WHERE package_id = $1`, packageID); err != nil {
		return err
	}
	for i, item := range items {
		if _, err := r.db.Exec(ctx, `INSERT INTO package_items (package_id, service_id, quantity, position) VALUES ($1, $2, $3, $4)`,
			packageID, item.ServiceID, item.Quantity, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) DeletePackage(ctx context.Context, businessID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM packages WHERE business_id = $1 AND id = $2`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
