package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/quotes"
)

// Repository reads the tenant aggregates shown on the dashboard.
type Repository interface {
	CountClients(ctx context.Context, businessID int64) (int, error)
	CountServices(ctx context.Context, businessID int64) (int, error)
	QuotesByStatus(ctx context.Context, businessID int64) (map[quotes.Status]int, error)
	AcceptedTotal(ctx context.Context, businessID int64, from, to time.Time) (decimal.Decimal, error)
	LatestQuotes(ctx context.Context, businessID int64, limit int) ([]RecentQuote, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

func (r *PGRepository) count(ctx context.Context, query string, businessID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, query, businessID).Scan(&n)
	return n, err
}

// CountClients counts the tenant's clients.
func (r *PGRepository) CountClients(ctx context.Context, businessID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM clients WHERE business_id = $1`, businessID)
}

// CountServices counts the tenant's active services.
func (r *PGRepository) CountServices(ctx context.Context, businessID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM services WHERE business_id = $1 AND is_active`, businessID)
}

// QuotesByStatus counts quotes per status.
func (r *PGRepository) QuotesByStatus(ctx context.Context, businessID int64) (map[quotes.Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM quotes WHERE business_id = $1 GROUP BY status`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[quotes.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[quotes.Status(status)] = n
	}
	return out, rows.Err()
}

// AcceptedTotal sums accepted quotes updated in [from, to).
func (r *PGRepository) AcceptedTotal(ctx context.Context, businessID int64, from, to time.Time) (decimal.Decimal, error) {
	var total pgtype.Numeric
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0) FROM quotes
WHERE business_id = $1 AND status = 'ACCEPTED' AND updated_at >= $2 AND updated_at < $3`,
		businessID, from, to).Scan(&total)
	return db.Decimal(total), err
}

// LatestQuotes lists the most recently created quotes.
func (r *PGRepository) LatestQuotes(ctx context.Context, businessID int64, limit int) ([]RecentQuote, error) {
	rows, err := r.db.Query(ctx, `SELECT q.id, q.quote_number, q.status, q.total, q.created_at,
c.first_name, c.last_name
FROM quotes q LEFT JOIN clients c ON c.id = q.client_id AND c.business_id = q.business_id
WHERE q.business_id = $1
ORDER BY q.created_at DESC, q.id DESC
LIMIT $2`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecentQuote
	for rows.Next() {
		var (
			rq        RecentQuote
			status    string
			total     pgtype.Numeric
			firstName pgtype.Text
			lastName  pgtype.Text
		)
		if err := rows.Scan(&rq.ID, &rq.QuoteNumber, &status, &total, &rq.CreatedAt, &firstName, &lastName); err != nil {
			return nil, err
		}
		rq.Status = quotes.Status(status)
		rq.Total = db.Decimal(total)
		rq.ClientName = quotes.DeletedClientLabel
		if firstName.Valid {
			rq.ClientName = clientName(firstName.String, lastName.String)
		}
		out = append(out, rq)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
