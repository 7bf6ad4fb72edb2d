package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/gamma-omg/nativeauth/internal/pkg/httpx"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/service"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/store"
)

// secretFields are never returned by the user lookup.
var secretFields = []string{"accessToken", "idToken", "refreshToken"}

type authService interface {
	Login(ctx context.Context, r service.LoginRequest) (service.LoginResponse, error)
	GetUser(ctx context.Context, id string) (store.User, error)
}

type API struct {
	srv authService
	mux *http.ServeMux
}

func NewAPI(srv authService) *API {
	api := &API{
		srv: srv,
		mux: http.NewServeMux(),
	}
	api.mount()
	return api
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) mount() {
	a.mux.HandleFunc("POST /login", a.handleLogin)
	a.mux.HandleFunc("POST /{provider}/login", a.handleLogin)
	a.mux.HandleFunc("GET /users/{id}", a.handleGetUser)
}

type loginResponse struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload map[string]json.RawMessage
	if err := httpx.ReadJSON(r, &payload); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	resp, err := a.srv.Login(r.Context(), service.LoginRequest{
		Provider: r.PathValue("provider"),
		Payload:  payload,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	err = httpx.WriteJSON(w, http.StatusOK, loginResponse{
		UserID:   resp.UserID,
		Provider: resp.Provider,
	})
	if err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
		return
	}
}

type profileResponse struct {
	Name string `json:"name"`
}

type userResponse struct {
	ID        string                    `json:"id"`
	Profile   profileResponse           `json:"profile"`
	Emails    []store.Email             `json:"emails"`
	Services  map[string]map[string]any `json:"services"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	usr, err := a.srv.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	err = httpx.WriteJSON(w, http.StatusOK, newUserResponse(usr))
	if err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
		return
	}
}

func newUserResponse(u store.User) userResponse {
	services := make(map[string]map[string]any, len(u.Services))
	for p, data := range u.Services {
		data = maps.Clone(data)
		for _, k := range secretFields {
			delete(data, k)
		}
		services[p] = data
	}

	emails := u.Emails
	if emails == nil {
		emails = []store.Email{}
	}

	return userResponse{
		ID:        u.ID,
		Profile:   profileResponse{Name: u.Profile.Name},
		Emails:    emails,
		Services:  services,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
