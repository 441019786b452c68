package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
)

// ErrDuplicateNumber is returned by Create when the quote number is already
// taken within the business.
var ErrDuplicateNumber = errors.New("quotes: duplicate quote number")

const numberConstraint = "quotes_business_id_quote_number_key"

// Repository persists quotes. Every method is scoped by businessID.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	LatestNumber(ctx context.Context, businessID int64, prefix string) (string, error)
	Create(ctx context.Context, q *Quote) (int64, error)
	Get(ctx context.Context, businessID, id int64) (*Quote, error)
	List(ctx context.Context, businessID int64, filter ListFilter) ([]Quote, int, error)
	Update(ctx context.Context, q *Quote) error
	Delete(ctx context.Context, businessID, id int64) error
	SetStatus(ctx context.Context, businessID, id int64, from []Status, to Status, sentAt *time.Time) error
	ClientExists(ctx context.Context, businessID, clientID int64) (bool, error)
	CountOwnedServices(ctx context.Context, businessID int64, ids []int64) (int, error)
	CountOwnedPackages(ctx context.Context, businessID int64, ids []int64) (int, error)
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

// LatestNumber returns the number of the most recently created quote whose
// number starts with prefix, or "" when there is none.
func (r *repository) LatestNumber(ctx context.Context, businessID int64, prefix string) (string, error) {
	var number string
	err := r.db.QueryRow(ctx, `SELECT quote_number FROM quotes
WHERE business_id = $1 AND quote_number LIKE $2
ORDER BY created_at DESC, id DESC LIMIT 1`, businessID, prefix+"%").Scan(&number)
	if err != nil {
		if db.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return number, nil
}

// Create inserts the quote and its items. Call it inside WithTx.
func (r *repository) Create(ctx context.Context, q *Quote) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO quotes (business_id, client_id, quote_number, status, subtotal, discount, discount_type, total, notes, valid_until, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id, created_at, updated_at`,
		q.BusinessID, db.Int8(q.ClientID), q.QuoteNumber, string(q.Status), db.Numeric(q.Subtotal), db.Numeric(q.Discount),
		string(q.DiscountType), db.Numeric(q.Total), q.Notes, date(q.ValidUntil), db.Int8(q.CreatedBy),
	).Scan(&id, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, numberConstraint) {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	q.ID = id
	if err := r.insertItems(ctx, id, q.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) insertItems(ctx context.Context, quoteID int64, items []Item) error {
	for i, item := range items {
		if _, err := r.db.Exec(ctx, `INSERT INTO quote_items (quote_id, service_id, package_id, name, description, unit_price, quantity, line_total, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			quoteID, db.Int8(item.ServiceID), db.Int8(item.PackageID), item.Name, item.Description,
			db.Numeric(item.UnitPrice), item.Quantity, db.Numeric(item.LineTotal), i,
		); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

const quoteSelect = `SELECT q.id, q.business_id, q.client_id, q.quote_number, q.status, q.subtotal, q.discount, q.discount_type, q.total,
q.notes, q.valid_until, q.sent_at, q.created_by, q.created_at, q.updated_at,
c.id, c.first_name, c.last_name, c.email, c.phone, c.address
FROM quotes q
LEFT JOIN clients c ON c.id = q.client_id AND c.business_id = q.business_id`

func scanQuote(row interface{ Scan(...any) error }) (*Quote, error) {
	var (
		q                               Quote
		clientID, createdBy, joinedID   pgtype.Int8
		subtotal, discount, total       pgtype.Numeric
		status, discountType            string
		validUntil                      pgtype.Date
		sentAt                          pgtype.Timestamptz
		first, last, email, phone, addr pgtype.Text
	)
	if err := row.Scan(&q.ID, &q.BusinessID, &clientID, &q.QuoteNumber, &status, &subtotal, &discount, &discountType, &total,
		&q.Notes, &validUntil, &sentAt, &createdBy, &q.CreatedAt, &q.UpdatedAt,
		&joinedID, &first, &last, &email, &phone, &addr); err != nil {
		return nil, err
	}
	q.ClientID = db.Int8Ptr(clientID)
	q.CreatedBy = db.Int8Ptr(createdBy)
	q.Status = Status(status)
	q.DiscountType = pricing.DiscountType(discountType)
	q.Subtotal = db.Decimal(subtotal)
	q.Discount = db.Decimal(discount)
	q.Total = db.Decimal(total)
	if validUntil.Valid {
		t := validUntil.Time
		q.ValidUntil = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		q.SentAt = &t
	}
	if joinedID.Valid {
		q.Client = &ClientRef{ID: joinedID.Int64, FirstName: first.String, LastName: last.String, Email: email.String, Phone: phone.String, Address: addr.String}
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, businessID, id int64) (*Quote, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, quoteSelect+` WHERE q.business_id = $1 AND q.id = $2`, businessID, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	items, err := r.items(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func (r *repository) items(ctx context.Context, quoteID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT id, service_id, package_id, name, description, unit_price, quantity, line_total
FROM quote_items WHERE quote_id = $1 ORDER BY position, id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var (
			item                 Item
			serviceID, packageID pgtype.Int8
			unitPrice, lineTotal pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &serviceID, &packageID, &item.Name, &item.Description, &unitPrice, &item.Quantity, &lineTotal); err != nil {
			return nil, err
		}
		item.ServiceID = db.Int8Ptr(serviceID)
		item.PackageID = db.Int8Ptr(packageID)
		item.UnitPrice = db.Decimal(unitPrice)
		item.LineTotal = db.Decimal(lineTotal)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, businessID int64, filter ListFilter) ([]Quote, int, error) {
	conditions := []string{"q.business_id = $1"}
	args := []any{businessID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		conditions = append(conditions, fmt.Sprintf("(q.quote_number ILIKE $%[1]d OR (c.first_name || ' ' || c.last_name) ILIKE $%[1]d)", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotes q LEFT JOIN clients c ON c.id = q.client_id AND c.business_id = q.business_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	rows, err := r.db.Query(ctx, quoteSelect+where+fmt.Sprintf(" ORDER BY q.created_at DESC, q.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

// Update rewrites a draft quote and replaces its items. Call it inside WithTx.
func (r *repository) Update(ctx context.Context, q *Quote) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET client_id = $3, subtotal = $4, discount = $5, discount_type = $6, total = $7, notes = $8, valid_until = $9, updated_at = NOW()
WHERE business_id = $1 AND id = $2 AND status = 'DRAFT'`,
		q.BusinessID, q.ID, db.Int8(q.ClientID), db.Numeric(q.Subtotal), db.Numeric(q.Discount), string(q.DiscountType),
		db.Numeric(q.Total), q.Notes, date(q.ValidUntil))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrLocked(ctx, q.BusinessID, q.ID)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, q.ID); err != nil {
		return err
	}
	return r.insertItems(ctx, q.ID, q.Items)
}

func (r *repository) Delete(ctx context.Context, businessID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quotes WHERE business_id = $1 AND id = $2 AND status = 'DRAFT'`, businessID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrLocked(ctx, businessID, id)
	}
	return nil
}

// SetStatus moves a quote to status to when its current status is one of from.
func (r *repository) SetStatus(ctx context.Context, businessID, id int64, from []Status, to Status, sentAt *time.Time) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	var sent pgtype.Timestamptz
	if sentAt != nil {
		sent = pgtype.Timestamptz{Time: sentAt.UTC(), Valid: true}
	}
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET status = $3, sent_at = COALESCE($4, sent_at), updated_at = NOW()
WHERE business_id = $1 AND id = $2 AND status = ANY($5)`, businessID, id, string(to), sent, allowed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrLocked(ctx, businessID, id)
	}
	return nil
}

func (r *repository) missingOrLocked(ctx context.Context, businessID, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quotes WHERE business_id = $1 AND id = $2)`, businessID, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	return shared.ErrInvalidState
}

func (r *repository) ClientExists(ctx context.Context, businessID, clientID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE business_id = $1 AND id = $2)`, businessID, clientID).Scan(&exists)
	return exists, err
}

func (r *repository) CountOwnedServices(ctx context.Context, businessID int64, ids []int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT id) FROM services WHERE business_id = $1 AND id = ANY($2)`, businessID, ids).Scan(&n)
	return n, err
}

func (r *repository) CountOwnedPackages(ctx context.Context, businessID int64, ids []int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT id) FROM packages WHERE business_id = $1 AND id = ANY($2)`, businessID, ids).Scan(&n)
	return n, err
}

func date(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}
