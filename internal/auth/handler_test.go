package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/solkant/solkant/internal/auth"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
	_ "github.com/solkant/solkant/testing"
)

type stubRepo struct {
	auth.Repository
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	cookies  []*http.Cookie
}

func newHarness(t *testing.T, repo auth.Repository) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	handler := auth.NewHandler(nil, auth.NewService(repo, nil, nil, "", nil), templates, sessions, csrf)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			if identity, ok := sess.Identity(); ok {
				ctx = shared.ContextWithTenant(ctx, identity)
			}
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, req, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	r.With(auth.RequireTenant).Get("/", func(w http.ResponseWriter, r *http.Request) {
		tenant, _ := shared.TenantFromContext(r.Context())
		_, _ = w.Write([]byte(tenant.Email))
	})
	r.With(auth.RequireTenant).Get("/api/quotes", func(w http.ResponseWriter, r *http.Request) {})
	return &harness{router: r, sessions: sessions}
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if cookies := rec.Result().Cookies(); len(cookies) > 0 {
		h.cookies = cookies
	}
	return rec
}

func (h *harness) csrfToken(t *testing.T) string {
	t.Helper()
	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	marker := `name="csrf_token" value="`
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0, "csrf field missing")
	rest := body[idx+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func userWithPassword(t *testing.T, password string) *auth.User {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 1, BusinessID: 7, Email: "user@institut.fr", PasswordHash: string(hashed), IsActive: true}
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t, &stubRepo{sessions: map[string]int64{}})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<form")
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, &stubRepo{user: userWithPassword(t, "correctpass"), sessions: map[string]int64{}})
	token := h.csrfToken(t)

	rec := h.do(postForm("/auth/login", url.Values{
		"email":      {"user@institut.fr"},
		"password":   {"wrongpass"},
		"csrf_token": {token},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Adresse e-mail ou mot de passe incorrect")
}

func TestLoginBindsTenantAndLogoutClearsIt(t *testing.T) {
	repo := &stubRepo{user: userWithPassword(t, "correctpass"), sessions: map[string]int64{}}
	h := newHarness(t, repo)
	token := h.csrfToken(t)

	rec := h.do(postForm("/auth/login", url.Values{
		"email":      {"user@institut.fr"},
		"password":   {"correctpass"},
		"csrf_token": {token},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Len(t, repo.sessions, 1)

	home := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, home.Code)
	assert.Equal(t, "user@institut.fr", home.Body.String())

	out := h.do(postForm("/auth/logout", url.Values{}))
	assert.Equal(t, http.StatusSeeOther, out.Code)
	assert.Empty(t, repo.sessions)

	after := h.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, after.Code)
	assert.Equal(t, auth.LoginPath, after.Header().Get("Location"))
}

func TestRequireTenantJSON(t *testing.T) {
	h := newHarness(t, &stubRepo{sessions: map[string]int64{}})
	rec := h.do(httptest.NewRequest(http.MethodGet, "/api/quotes", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Non autorisé", body["error"])
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}
