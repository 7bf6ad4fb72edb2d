package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gamma-omg/nativeauth/internal/pkg/serr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"value"}`))

	var out map[string]string
	require.NoError(t, ReadJSON(req, &out))
	assert.Equal(t, "value", out["name"])
}

func TestReadJSON_Malformed(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":`))

	var out map[string]string
	err := ReadJSON(req, &out)

	var se *serr.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]string{"user_id": "u1"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"user_id":"u1"}`, rec.Body.String())
}

func TestHandleErr(t *testing.T) {
	tbl := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"service error", serr.NewServiceError(errors.New("x"), http.StatusUnauthorized, "authentication failed"), http.StatusUnauthorized, `{"error":"authentication failed"}`},
		{"plain error", errors.New("db down"), http.StatusInternalServerError, `{"error":"Internal Server Error"}`},
	}

	for _, c := range tbl {
		t.Run(c.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleErr(rec, httptest.NewRequest("POST", "/login", nil), c.err)

			assert.Equal(t, c.status, rec.Code)
			assert.JSONEq(t, c.body, rec.Body.String())
		})
	}
}
