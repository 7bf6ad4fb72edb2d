package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gamma-omg/nativeauth/internal/pkg/serr"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/oauth"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/reconcile"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/store"
)

// authenticator defines the interface for native SDK login dispatch
type authenticator interface {
	Login(ctx context.Context, provider string, payload map[string]json.RawMessage) (oauth.Result, error)
	LoginAny(ctx context.Context, payload map[string]json.RawMessage) (oauth.Result, error)
}

// userStore defines the read access needed for user lookups
type userStore interface {
	GetUser(ctx context.Context, id string) (store.User, error)
}

// Auth verifies native SDK logins and exposes the linked users
type Auth struct {
	auth  authenticator
	store userStore
}

// AuthOption defines a functional option for configuring the Auth service
type AuthOption func(*Auth) *Auth

func WithAuthenticator(a authenticator) AuthOption {
	return func(s *Auth) *Auth {
		s.auth = a
		return s
	}
}

func WithStore(st userStore) AuthOption {
	return func(s *Auth) *Auth {
		s.store = st
		return s
	}
}

// NewAuth creates a new Auth service with the provided options
func NewAuth(opts ...AuthOption) *Auth {
	s := &Auth{}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.auth == nil {
		panic("authenticator is required")
	}

	if s.store == nil {
		panic("store is required")
	}

	return s
}

// LoginRequest carries the whole login payload keyed by provider name. When
// Provider is empty every registered provider is offered the payload.
type LoginRequest struct {
	Provider string
	Payload  map[string]json.RawMessage
}

type LoginResponse struct {
	UserID   string
	Provider string
}

// Login verifies the credential with its provider and returns the linked user
func (s *Auth) Login(ctx context.Context, r LoginRequest) (LoginResponse, error) {
	var (
		res oauth.Result
		err error
	)
	if r.Provider == "" {
		res, err = s.auth.LoginAny(ctx, r.Payload)
	} else {
		res, err = s.auth.Login(ctx, r.Provider, r.Payload)
	}
	if err != nil {
		return LoginResponse{}, loginError(err, r.Provider)
	}

	return LoginResponse{
		UserID:   res.UserID,
		Provider: res.Provider,
	}, nil
}

// GetUser returns the user with the given id
func (s *Auth) GetUser(ctx context.Context, id string) (store.User, error) {
	usr, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, serr.NewServiceError(err, http.StatusNotFound, "user not found").With("user_id", id)
		}

		return store.User{}, fmt.Errorf("get user: %w", err)
	}

	return usr, nil
}

// loginError converts an authenticator error into a ServiceError that carries
// the HTTP status for the failure kind.
func loginError(err error, provider string) error {
	var le *oauth.LoginError
	if errors.As(err, &le) {
		provider = le.Provider
	}

	var (
		ce   *oauth.CommunicationError
		sErr *serr.ServiceError
	)
	switch {
	case errors.Is(err, oauth.ErrProviderNotFound):
		sErr = serr.NewServiceError(err, http.StatusNotFound, "login service not found")
	case errors.Is(err, oauth.ErrNotHandled):
		sErr = serr.NewServiceError(err, http.StatusBadRequest, "no supported login service in request")
	case errors.Is(err, oauth.ErrMissingCredential):
		sErr = serr.NewServiceError(err, http.StatusUnauthorized, "%s login without required token", provider)
	case errors.Is(err, oauth.ErrLinkFailed):
		sErr = serr.NewServiceError(err, http.StatusInternalServerError, "failed to link %s", provider)
	case errors.Is(err, oauth.ErrVerificationFailed):
		sErr = serr.NewServiceError(err, http.StatusUnauthorized, "%s token could not be verified", provider)
	case errors.As(err, &ce):
		sErr = serr.NewServiceError(err, http.StatusInternalServerError, "failed to fetch identity from %s", provider).
			With("provider_status", strconv.Itoa(ce.StatusCode)).
			With("provider_response", ce.Response)
	case errors.Is(err, oauth.ErrConfigMissing):
		sErr = serr.NewServiceError(err, http.StatusInternalServerError, "%s login is not configured", provider)
	case errors.Is(err, reconcile.ErrBusy):
		sErr = serr.NewServiceError(err, http.StatusConflict, "login already in progress")
	default:
		return fmt.Errorf("login: %w", err)
	}

	if provider != "" {
		sErr.With("provider", provider)
	}
	return sErr
}
