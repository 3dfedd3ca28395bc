package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestParseToken_RoundTrip(t *testing.T) {
	tok, err := GenerateToken(testSecret, "u42", RoleOperator, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	require.Equal(t, "u42", id.ActorID)
	require.Equal(t, RoleOperator, id.Role)
	require.False(t, id.Admin())
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken(testSecret, "u42", RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", tok)
	require.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := GenerateToken(testSecret, "u42", RoleAdmin, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, tok)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	var got Identity
	h := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFrom(r.Context())
	}))

	// без заголовка
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// кривой формат
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// валидный токен
	tok, err := GenerateToken(testSecret, "u1", RoleAdmin, time.Hour)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1", got.ActorID)
}

func TestMiddleware_EmptySecretDisablesAuth(t *testing.T) {
	var got Identity
	h := Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, got.Admin())
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{ActorID: "u1", Role: RoleOperator}))
	RequireAdmin(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{ActorID: "root", Role: RoleAdmin}))
	RequireAdmin(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
