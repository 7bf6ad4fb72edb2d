package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gamma-omg/nativeauth/internal/pkg/router"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedRouter(key []byte) *router.Router {
	r := router.New()
	r.Use(Auth(key))
	r.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, CallerFromContext(r.Context()))
	})
	return r
}

func sign(t *testing.T, key []byte, method jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestAuth_WithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	protectedRouter([]byte("k")).ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
}

func TestAuth_InvalidToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec := httptest.NewRecorder()

	protectedRouter([]byte("k")).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ValidToken(t *testing.T) {
	key := []byte("test-api-key")
	signed := sign(t, key, jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "accounts-frontend"})

	for _, header := range []string{signed, "Bearer " + signed} {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		protectedRouter(key).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "accounts-frontend\n", rec.Body.String())
	}
}

func TestAuth_WrongKey(t *testing.T) {
	signed := sign(t, []byte("other-key"), jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "svc"})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	protectedRouter([]byte("test-api-key")).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_Expired(t *testing.T) {
	key := []byte("test-api-key")
	signed := sign(t, key, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	protectedRouter(key).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_WrongAlgorithm(t *testing.T) {
	key := []byte("test-api-key")
	signed := sign(t, key, jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "svc"})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	protectedRouter(key).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ValidToken_NoSubject(t *testing.T) {
	key := []byte("test-api-key")
	signed := sign(t, key, jwt.SigningMethodHS256, jwt.RegisteredClaims{})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", signed)
	rec := httptest.NewRecorder()

	protectedRouter(key).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
