package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/identity"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/store"
	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/svcconfig"
)

// configStore resolves provider configuration by service name
type configStore interface {
	Get(ctx context.Context, service string) (svcconfig.ProviderConfig, error)
}

// reconciler links a verified identity to a local user
type reconciler interface {
	Reconcile(ctx context.Context, provider string, data store.ServiceData, email store.Email) (string, error)
}

type Result struct {
	UserID   string
	Provider string
}

// Authenticator dispatches login requests to registered providers and runs
// verify, normalize and reconcile for the one that handles the request.
type Authenticator struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string

	configs    configStore
	reconciler reconciler
	now        func() time.Time
}

func NewAuthenticator(configs configStore, r reconciler) *Authenticator {
	return &Authenticator{
		providers:  make(map[string]Provider),
		configs:    configs,
		reconciler: r,
		now:        time.Now,
	}
}

func (a *Authenticator) Use(p Provider) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := p.Name()
	if _, ok := a.providers[name]; ok {
		return ErrProviderConflict
	}

	a.providers[name] = p
	a.order = append(a.order, name)
	return nil
}

// Providers returns registered provider names in registration order.
func (a *Authenticator) Providers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return append([]string(nil), a.order...)
}

// Login runs the named provider against payload, the whole login request
// keyed by provider name. ErrNotHandled is returned, before any provider call
// or store write, when payload has no entry for the provider.
func (a *Authenticator) Login(ctx context.Context, provider string, payload map[string]json.RawMessage) (Result, error) {
	p, err := a.getProvider(provider)
	if err != nil {
		return Result{}, err
	}

	raw, ok := payload[provider]
	if !ok || isNull(raw) {
		return Result{}, ErrNotHandled
	}

	res, err := a.login(ctx, p, raw)
	if err != nil {
		return Result{}, &LoginError{Provider: provider, Err: err}
	}

	return res, nil
}

// LoginAny offers payload to every provider in registration order and returns
// the outcome of the first one that handles it.
func (a *Authenticator) LoginAny(ctx context.Context, payload map[string]json.RawMessage) (Result, error) {
	for _, name := range a.Providers() {
		res, err := a.Login(ctx, name, payload)
		if errors.Is(err, ErrNotHandled) {
			continue
		}
		return res, err
	}

	return Result{}, ErrNotHandled
}

func (a *Authenticator) login(ctx context.Context, p Provider, raw json.RawMessage) (Result, error) {
	name := p.Name()

	cred, err := p.ParseCredential(raw)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s credential: %w", name, err)
	}

	expiresAt := a.now().Add(cred.ExpiresIn)

	var cfg svcconfig.ProviderConfig
	if p.RequiresConfig() {
		cfg, err = a.configs.Get(ctx, name)
		if err != nil {
			if errors.Is(err, svcconfig.ErrNotFound) {
				return Result{}, ErrConfigMissing
			}
			return Result{}, fmt.Errorf("get %s config: %w", name, err)
		}
	}

	v, err := p.Verify(ctx, cred, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("verify %s: %w", name, err)
	}
	if v.Subject == "" {
		return Result{}, fmt.Errorf("verify %s: empty subject: %w", name, ErrVerificationFailed)
	}

	ident := identity.Normalize(v.Profile, p.Whitelist())
	ident["id"] = v.Subject

	if !v.ExpiresAt.IsZero() {
		expiresAt = v.ExpiresAt
	}

	data := store.ServiceData{
		AccessToken:  v.AccessToken,
		IDToken:      v.IDToken,
		RefreshToken: v.RefreshToken,
		ExpiresAt:    expiresAt,
		Scope:        v.Scope,
		Identity:     ident,
	}
	email := store.Email{
		Address:  ident.Email(),
		Verified: p.EmailVerified(ident),
	}

	userID, err := a.reconciler.Reconcile(ctx, name, data, email)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile %s identity: %w", name, err)
	}

	return Result{UserID: userID, Provider: name}, nil
}

func (a *Authenticator) getProvider(name string) (Provider, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}

	return p, nil
}
