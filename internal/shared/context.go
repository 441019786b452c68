package shared

import "context"

type sessionContextKey struct{}

type tenantContextKey struct{}

// Tenant is the identity a request acts for.
type Tenant struct {
	UserID     int64
	BusinessID int64
	Email      string
}

// Valid reports whether both identifiers are set.
func (t Tenant) Valid() bool {
	return t.UserID > 0 && t.BusinessID > 0
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithTenant stores the resolved tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext returns the tenant, or ErrUnauthorized when none was resolved.
func TenantFromContext(ctx context.Context) (Tenant, error) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	if !ok || !t.Valid() {
		return Tenant{}, ErrUnauthorized
	}
	return t, nil
}
