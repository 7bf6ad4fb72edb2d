// Package svcconfig resolves the per-provider client configuration used to
// verify logins: accepted client ids and the confidential client credentials.
package svcconfig

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("service configuration not found")

type ProviderConfig struct {
	Service        string
	ClientID       string
	Secret         string
	ValidClientIDs []string
}

type Store interface {
	Get(ctx context.Context, service string) (ProviderConfig, error)
}

// Static serves configurations known at startup, keyed by service name.
type Static map[string]ProviderConfig

func (s Static) Get(_ context.Context, service string) (ProviderConfig, error) {
	cfg, ok := s[service]
	if !ok {
		return ProviderConfig{}, ErrNotFound
	}
	return cfg, nil
}

// Chain asks each store in order and returns the first configuration found.
type Chain []Store

func (c Chain) Get(ctx context.Context, service string) (ProviderConfig, error) {
	for _, s := range c {
		cfg, err := s.Get(ctx, service)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return ProviderConfig{}, fmt.Errorf("get %s config: %w", service, err)
		}
	}
	return ProviderConfig{}, ErrNotFound
}
