package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gamma-omg/nativeauth/internal/pkg/router"
	"github.com/golang-jwt/jwt/v5"
)

type (
	callerKey     struct{}
	callerSlotKey struct{}
)

// callerSlot is placed in the context by Log so that an Auth further down the
// chain, which only sees a derived request, can report the caller back.
type callerSlot struct {
	name string
}

// Auth requires every request to carry an HS256 JWT signed with key, either as
// "Authorization: Bearer <token>" or as the bare header value. The token's
// subject names the calling service and is stored in the request context.
func Auth(key []byte) router.Middleware {
	return func(next http.Handler) http.Handler {
		return authMiddleware(next, key)
	}
}

func authMiddleware(next http.Handler, key []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := strings.TrimSpace(r.Header.Get("Authorization"))
		rawToken = strings.TrimSpace(strings.TrimPrefix(rawToken, "Bearer "))
		if rawToken == "" {
			unauthorized(w)
			return
		}

		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			authError("failed to parse jwt", r, err)
			unauthorized(w)
			return
		}
		if !token.Valid || claims.Subject == "" {
			unauthorized(w)
			return
		}

		if slot, ok := r.Context().Value(callerSlotKey{}).(*callerSlot); ok {
			slot.name = claims.Subject
		}

		ctx := context.WithValue(r.Context(), callerKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}` + "\n"))
}

func authError(msg string, r *http.Request, err error) {
	slog.Warn(msg,
		"error", err,
		"method", r.Method,
		"url", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
}

// CallerFromContext returns the authenticated caller, or "" when the request
// did not pass through Auth.
func CallerFromContext(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
