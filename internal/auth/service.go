package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/solkant/solkant/internal/mail"
	"github.com/solkant/solkant/internal/shared"
)

const (
	// ResetTokenTTL bounds how long a reset link stays valid.
	ResetTokenTTL = time.Hour
	// ResetTokenRetention is how long consumed or expired tokens are kept.
	ResetTokenRetention = 24 * time.Hour

	resetEmailTemplate = "emails/password_reset.html"
)

// ErrInvalidResetToken covers unknown, expired and already used tokens.
var ErrInvalidResetToken = errors.New("auth: invalid or expired reset token")

// EmailRenderer renders an email body template.
type EmailRenderer interface {
	Execute(w io.Writer, name string, data any) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	mailer   mail.Sender
	emails   EmailRenderer
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
	hashCost int
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost overrides the bcrypt cost, tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService constructs a new Service. mailer and emails may be nil when the
// password reset flow is not used.
func NewService(repo Repository, mailer mail.Sender, emails EmailRenderer, baseURL string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		mailer:   mailer,
		emails:   emails,
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Signup creates a business and its owner account.
func (s *Service) Signup(ctx context.Context, businessName, name, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	var user *User
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		created, err := repo.CreateBusinessWithOwner(ctx, Signup{
			BusinessName: businessName,
			Name:         name,
			Email:        email,
			PasswordHash: string(hash),
		})
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, shared.NewValidationError(map[string]string{"email": "Cette adresse e-mail est déjà utilisée"})
		}
		return nil, fmt.Errorf("signup: %w", err)
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RequestPasswordReset emails a single-use reset link. Unknown or inactive
// accounts are ignored silently so the response never reveals which emails
// exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	token := uuid.NewString()
	if err := s.repo.CreateResetToken(ctx, user.ID, HashToken(token), s.now().Add(ResetTokenTTL)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if s.mailer == nil || s.emails == nil {
		return errors.New("auth: password reset mail not configured")
	}

	var body bytes.Buffer
	link := s.baseURL + "/auth/reset?token=" + token
	if err := s.emails.Execute(&body, resetEmailTemplate, map[string]any{
		"Name":    user.Name,
		"Link":    link,
		"Expires": ResetTokenTTL,
	}); err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}
	return s.mailer.Send(ctx, mail.Message{
		To:      []string{user.Email},
		Subject: "Réinitialisation de votre mot de passe",
		HTML:    body.String(),
	})
}

// ResetPassword redeems a token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		stored, err := repo.FindResetToken(ctx, HashToken(token))
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}
		now := s.now()
		if !stored.Usable(now) {
			return ErrInvalidResetToken
		}
		if err := repo.MarkResetTokenUsed(ctx, stored.ID, now); err != nil {
			if errors.Is(err, shared.ErrInvalidState) {
				return ErrInvalidResetToken
			}
			return err
		}
		return repo.UpdatePassword(ctx, stored.UserID, string(hash))
	})
}

// PurgeExpiredTokens removes reset tokens past retention.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeResetTokens(ctx, s.now().Add(-ResetTokenRetention))
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "purged password reset tokens", slog.Int64("count", n))
	return n, nil
}

// HashToken returns the hex SHA-256 of a reset token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
