package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solkant/solkant/internal/platform/db"
	"github.com/solkant/solkant/internal/shared"
)

// ErrEmailTaken is returned when signing up with an existing email.
var ErrEmailTaken = errors.New("auth: email already registered")

// Repository defines persistence operations for auth module.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	CreateBusinessWithOwner(ctx context.Context, input Signup) (*User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	CreateResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	FindResetToken(ctx context.Context, tokenHash string) (*ResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id int64, at time.Time) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	PurgeResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, db: pool}
}

// WithTx runs fn with a repository bound to a single transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{pool: r.pool, db: tx})
	})
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.QueryRow(ctx, `SELECT id, business_id, email, name, password_hash, is_active, created_at, updated_at
FROM users WHERE email = $1`, normalizeEmail(email)).Scan(
		&user.ID, &user.BusinessID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateBusinessWithOwner inserts the business and its first user. Call it
// inside WithTx so both rows commit together.
func (r *PGRepository) CreateBusinessWithOwner(ctx context.Context, input Signup) (*User, error) {
	var businessID int64
	if err := r.db.QueryRow(ctx, `INSERT INTO businesses (name, email) VALUES ($1, $2) RETURNING id`,
		input.BusinessName, normalizeEmail(input.Email)).Scan(&businessID); err != nil {
		return nil, err
	}
	user := User{BusinessID: businessID, Email: normalizeEmail(input.Email), Name: input.Name, PasswordHash: input.PasswordHash, IsActive: true}
	err := r.db.QueryRow(ctx, `INSERT INTO users (business_id, email, name, password_hash) VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`, businessID, user.Email, user.Name, user.PasswordHash).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &user, nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO auth_sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, userID, time.Now().UTC(), expiresAt.UTC(), db.Text(ip), db.Text(ua))
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	return err
}

// CreateResetToken stores the hash of a reset token.
func (r *PGRepository) CreateResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		userID, tokenHash, expiresAt.UTC())
	return err
}

// FindResetToken looks a token up by hash.
func (r *PGRepository) FindResetToken(ctx context.Context, tokenHash string) (*ResetToken, error) {
	var (
		token  ResetToken
		usedAt pgtype.Timestamptz
	)
	err := r.db.QueryRow(ctx, `SELECT id, user_id, token_hash, expires_at, used_at FROM password_reset_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &usedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		token.UsedAt = &t
	}
	return &token, nil
}

// MarkResetTokenUsed consumes a token. It fails with ErrInvalidState when
// the token was consumed concurrently.
func (r *PGRepository) MarkResetTokenUsed(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvalidState
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
	return err
}

// PurgeResetTokens deletes tokens that expired or were used before the cutoff.
func (r *PGRepository) PurgeResetTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1 OR used_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Repository = (*PGRepository)(nil)
