package auth

import "time"

// User represents an authenticated user account. Every user belongs to
// exactly one business.
type User struct {
	ID           int64
	BusinessID   int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Signup is the data needed to open a business account.
type Signup struct {
	BusinessName string
	Name         string
	Email        string
	PasswordHash string
}

// ResetToken is a stored password reset request. Only the hash of the token
// is persisted.
type ResetToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Usable reports whether the token can still be redeemed at now.
func (t ResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
