package businesses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/shared"
)

// Repository persists businesses.
type Repository interface {
	Get(ctx context.Context, id int64) (*Business, error)
	UpdateProfile(ctx context.Context, id int64, p Profile) error
	SetCustomerID(ctx context.Context, id int64, customerID string) error
	ApplySubscription(ctx context.Context, id int64, update SubscriptionUpdate) error
	FindByCustomerID(ctx context.Context, customerID string) (*Business, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PGRepository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

const selectBusiness = `SELECT id, name, email, phone, address, siret, vat_mention, quote_footer, quote_validity_days,
COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), subscription_status, subscription_plan,
current_period_end, created_at, updated_at FROM businesses`

func scanBusiness(row interface{ Scan(...any) error }) (*Business, error) {
	var (
		b         Business
		periodEnd pgtype.Timestamptz
	)
	err := row.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &b.Address, &b.Siret, &b.VATMention, &b.QuoteFooter, &b.QuoteValidityDays,
		&b.StripeCustomerID, &b.StripeSubscriptionID, &b.SubscriptionStatus, &b.SubscriptionPlan,
		&periodEnd, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		b.CurrentPeriodEnd = &t
	}
	return &b, nil
}

// Get loads a business by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (*Business, error) {
	return scanBusiness(r.db.QueryRow(ctx, selectBusiness+` WHERE id = $1`, id))
}

// FindByCustomerID loads the business linked to a billing customer.
func (r *PGRepository) FindByCustomerID(ctx context.Context, customerID string) (*Business, error) {
	if customerID == "" {
		return nil, shared.ErrNotFound
	}
	return scanBusiness(r.db.QueryRow(ctx, selectBusiness+` WHERE stripe_customer_id = $1`, customerID))
}

// UpdateProfile saves the settings form.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, p Profile) error {
	tag, err := r.db.Exec(ctx, `UPDATE businesses SET name = $2, email = $3, phone = $4, address = $5, siret = $6,
vat_mention = $7, quote_footer = $8, quote_validity_days = $9, updated_at = NOW() WHERE id = $1`,
		id, p.Name, p.Email, p.Phone, p.Address, p.Siret, p.VATMention, p.QuoteFooter, p.QuoteValidityDays)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetCustomerID links the business to a billing customer.
func (r *PGRepository) SetCustomerID(ctx context.Context, id int64, customerID string) error {
	_, err := r.db.Exec(ctx, `UPDATE businesses SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, id, customerID)
	return err
}

// ApplySubscription stores the subscription state. Empty identifiers keep
// the stored values.
func (r *PGRepository) ApplySubscription(ctx context.Context, id int64, u SubscriptionUpdate) error {
	if u.Status == "" {
		return errors.New("businesses: subscription status required")
	}
	var periodEnd pgtype.Timestamptz
	if u.CurrentPeriodEnd != nil {
		periodEnd = pgtype.Timestamptz{Time: *u.CurrentPeriodEnd, Valid: true}
	}
	tag, err := r.db.Exec(ctx, `UPDATE businesses SET
stripe_customer_id = COALESCE($2, stripe_customer_id),
stripe_subscription_id = COALESCE($3, stripe_subscription_id),
subscription_status = $4,
subscription_plan = COALESCE($5, subscription_plan),
current_period_end = COALESCE($6, current_period_end),
updated_at = NOW()
WHERE id = $1`, id, db.Text(u.CustomerID), db.Text(u.SubscriptionID), u.Status, db.Text(u.Plan), periodEnd)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
