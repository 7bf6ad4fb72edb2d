package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gamma-omg/nativeauth/internal/pkg/serr"
)

const maxBodyBytes = 64 << 10

// ReadJSON decodes the request body into out. Bodies larger than 64 KiB are rejected.
func ReadJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return serr.NewServiceError(err, http.StatusBadRequest, "malformed request body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}

type errorResponse struct {
	Error string `json:"error"`
}

func HandleErr(w http.ResponseWriter, r *http.Request, err error) {
	attrs := []any{
		"error", err,
		"method", r.Method,
		"url", r.URL.String(),
		"remote_addr", r.RemoteAddr,
	}

	var se *serr.ServiceError
	if !errors.As(err, &se) {
		slog.Error("request error", attrs...)
		_ = WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}

	for k, v := range se.Env {
		attrs = append(attrs, fmt.Sprintf("env.%s", k), v)
	}
	if se.StatusCode >= http.StatusInternalServerError {
		slog.Error("request error", attrs...)
	} else {
		slog.Warn("request rejected", attrs...)
	}

	_ = WriteJSON(w, se.StatusCode, errorResponse{Error: se.Msg})
}
