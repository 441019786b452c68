package app

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/shared"
)

func newTestStack(t *testing.T) (http.Handler, *shared.CSRFManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "solkant_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionManager: sessions,
		CSRFManager:    csrf,
		CSRFExempt:     []string{WebhookPath},
	}) {
		r.Use(mw)
	}
	r.Get("/form", func(w http.ResponseWriter, r *http.Request) {
		token, err := csrf.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, token)
	})
	r.Post("/form", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post(WebhookPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, shared.SessionFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	return r, csrf
}

func TestMiddlewareRejectsPostWithoutToken(t *testing.T) {
	handler, _ := newTestStack(t)

	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareAcceptsSessionToken(t *testing.T) {
	handler, _ := newTestStack(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Body.String()
	require.NotEmpty(t, token)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("csrf_token="+token))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareExemptsWebhook(t *testing.T) {
	handler, _ := newTestStack(t)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestMiddlewareLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json"}, &buf)

	logger.Info("login attempt", slog.String("email", "a@b.fr"), slog.String("password", "hunter2"), slog.String("stripe_key", "sk_live_1"))

	out := buf.String()
	assert.Contains(t, out, "a@b.fr")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "sk_live_1")
}
