package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "solkant_session", "secret", time.Hour, false), mr
}

// roundTrip commits sess and loads it back through the emitted cookie.
func roundTrip(t *testing.T, sm *SessionManager, sess *Session) *Session {
	t.Helper()
	ctx := context.Background()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	return loaded
}

func TestSessionPersistsIdentityAndFlash(t *testing.T) {
	sm, _ := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	sess.SetIdentity(Tenant{UserID: 3, BusinessID: 9, Email: "a@institut.fr"})
	sess.AddFlash(FlashMessage{Kind: "success", Message: "Devis créé"})

	loaded := roundTrip(t, sm, sess)
	identity, ok := loaded.Identity()
	require.True(t, ok)
	assert.Equal(t, int64(9), identity.BusinessID)
	assert.Equal(t, "a@institut.fr", identity.Email)

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Devis créé", flash.Message)

	again := roundTrip(t, sm, loaded)
	assert.Nil(t, again.PopFlash(), "flash is consumed once")
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sm, _ := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetIdentity(Tenant{UserID: 1, BusinessID: 1})
	require.NoError(t, sm.Commit(context.Background(), httptest.NewRecorder(), nil, sess))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID + ".forged"})
	loaded, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	_, ok := loaded.Identity()
	assert.False(t, ok)
	assert.NotEqual(t, sess.ID, loaded.ID)
}

func TestSetIdentityRotatesExistingSession(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	loaded := roundTrip(t, sm, sess)
	oldID := loaded.ID

	loaded.SetIdentity(Tenant{UserID: 2, BusinessID: 5})
	relogged := roundTrip(t, sm, loaded)

	assert.NotEqual(t, oldID, relogged.ID)
	assert.False(t, mr.Exists("session:"+oldID))
	_, ok := relogged.Identity()
	assert.True(t, ok)
}

func TestDestroyRemovesSession(t *testing.T) {
	sm, mr := newTestSessions(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Commit(context.Background(), httptest.NewRecorder(), nil, sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, nil, sess))
	assert.False(t, mr.Exists("session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newTestSessions(t)
	csrf := NewCSRFManager("csrf")
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(context.Background(), sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, "nope"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(context.Background(), sess, ""), ErrCSRFTokenMissing)

	rotated, err := csrf.Rotate(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
}
