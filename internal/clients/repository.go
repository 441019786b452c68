package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/shared"
)

// Repository persists clients. Every method is scoped by businessID.
type Repository interface {
	Get(ctx context.Context, businessID, id int64) (*Client, error)
	List(ctx context.Context, businessID int64, filter ListFilter) ([]Client, int, error)
	Create(ctx context.Context, businessID int64, in Input) (int64, error)
	Update(ctx context.Context, businessID, id int64, in Input) error
	Delete(ctx context.Context, businessID, id int64) error
	Quotes(ctx context.Context, businessID, clientID int64) ([]QuoteSummary, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository returns a PostgreSQL Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const clientColumns = `id, business_id, first_name, last_name, email, phone, address, notes, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }, c *Client) error {
	return row.Scan(&c.ID, &c.BusinessID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
}

func (r *repository) Get(ctx context.Context, businessID, id int64) (*Client, error) {
	var c Client
	err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE business_id = $1 AND id = $2`, businessID, id), &c)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, businessID int64, filter ListFilter) ([]Client, int, error) {
	conditions := []string{"business_id = $1"}
	args := []any{businessID}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR email ILIKE $%[1]d OR (first_name || ' ' || last_name) ILIKE $%[1]d)", len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM clients "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM clients %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d",
		clientColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := scanClient(rows, &c); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, businessID int64, in Input) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO clients (business_id, first_name, last_name, email, phone, address, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		businessID, in.FirstName, in.LastName, in.Email, in.Phone, in.Address, in.Notes).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, businessID, id int64, in Input) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET first_name = $3, last_name = $4, email = $5, phone = $6, address = $7, notes = $8, updated_at = NOW()
WHERE business_id = $1 AND id = $2`, businessID, id, in.FirstName, in.LastName, in.Email, in.Phone, in.Address, in.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, businessID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE business_id = $1 AND id = $2`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Quotes(ctx context.Context, businessID, clientID int64) ([]QuoteSummary, error) {
	rows, err := r.db.Query(ctx, `SELECT id, quote_number, status, total, created_at FROM quotes
WHERE business_id = $1 AND client_id = $2 ORDER BY created_at DESC, id DESC`, businessID, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuoteSummary
	for rows.Next() {
		var (
			q     QuoteSummary
			total pgtype.Numeric
		)
		if err := rows.Scan(&q.ID, &q.QuoteNumber, &q.Status, &total, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Total = db.Decimal(total)
		out = append(out, q)
	}
	return out, rows.Err()
}
