package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gamma-omg/nativeauth/internal/pkg/router"
)

type httpStatusWriter struct {
	Status int
	inner  http.ResponseWriter
}

func (sw *httpStatusWriter) Header() http.Header {
	return sw.inner.Header()
}

func (sw *httpStatusWriter) WriteHeader(status int) {
	sw.Status = status
	sw.inner.WriteHeader(status)
}

func (sw *httpStatusWriter) Write(b []byte) (int, error) {
	if sw.Status == 0 {
		sw.Status = http.StatusOK
	}
	return sw.inner.Write(b)
}

func Log() router.Middleware {
	return LogWith(slog.Default())
}

// LogWith logs one line per request. Only the path is logged: login requests
// never carry credentials in the query, but other callers might. The caller is
// the subject accepted by an Auth anywhere below this middleware.
func LogWith(l *slog.Logger) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			statusWriter := &httpStatusWriter{inner: w}
			slot := &callerSlot{name: CallerFromContext(r.Context())}
			t := time.Now()

			next.ServeHTTP(statusWriter, r.WithContext(context.WithValue(r.Context(), callerSlotKey{}, slot)))
			if statusWriter.Status == 0 {
				statusWriter.Status = http.StatusOK
			}

			l.Info("request received",
				"time", t,
				"duration_ms", time.Since(t).Milliseconds(),
				"method", r.Method,
				"url", r.URL.Path,
				"ip", r.RemoteAddr,
				"status", statusWriter.Status,
				"caller", slot.name,
				"agent", r.UserAgent())
		})
	}
}
