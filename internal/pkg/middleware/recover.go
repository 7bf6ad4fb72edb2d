package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gamma-omg/nativeauth/internal/pkg/httpx"
	"github.com/gamma-omg/nativeauth/internal/pkg/router"
)

func Recover() router.Middleware {
	return RecoverWith(slog.Default())
}

// RecoverWith turns a handler panic into a JSON 500. When the handler already
// started its response only the log line is written. http.ErrAbortHandler is
// passed on so the server can drop the connection.
func RecoverWith(l *slog.Logger) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &httpStatusWriter{inner: w}

			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				l.Error("handler panicked",
					"panic", p,
					"method", r.Method,
					"url", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"status_sent", sw.Status,
					"stack_trace", string(debug.Stack()),
				)

				if sw.Status == 0 {
					_ = httpx.WriteJSON(sw, http.StatusInternalServerError, map[string]string{
						"error": "Internal Server Error",
					})
				}
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
