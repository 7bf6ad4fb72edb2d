package svcconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	calls   int
	getFunc func(ctx context.Context, service string) (ProviderConfig, error)
}

func (m *mockStore) Get(ctx context.Context, service string) (ProviderConfig, error) {
	m.calls++
	return m.getFunc(ctx, service)
}

func TestStatic_Get(t *testing.T) {
	s := Static{
		"google": {Service: "google", ClientID: "web", ValidClientIDs: []string{"ios"}},
	}

	cfg, err := s.Get(t.Context(), "google")
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.ClientID)

	_, err = s.Get(t.Context(), "facebook")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChain_Get(t *testing.T) {
	c := Chain{
		Static{},
		Static{"google": {Service: "google", ClientID: "second"}},
		Static{"google": {Service: "google", ClientID: "third"}},
	}

	cfg, err := c.Get(t.Context(), "google")
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.ClientID)

	_, err = c.Get(t.Context(), "facebook")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChain_Get_StopsOnError(t *testing.T) {
	failing := &mockStore{getFunc: func(ctx context.Context, service string) (ProviderConfig, error) {
		return ProviderConfig{}, errors.New("connection refused")
	}}

	c := Chain{failing, Static{"google": {Service: "google"}}}

	_, err := c.Get(t.Context(), "google")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCached_Get(t *testing.T) {
	next := &mockStore{getFunc: func(ctx context.Context, service string) (ProviderConfig, error) {
		return ProviderConfig{Service: service, ClientID: "web"}, nil
	}}

	c := NewCached(next, time.Minute)
	defer c.Close()

	cfg, err := c.Get(t.Context(), "google")
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.ClientID)
	c.Wait()

	cfg, err = c.Get(t.Context(), "google")
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.ClientID)
	assert.Equal(t, 1, next.calls)
}

func TestCached_Get_MissNotCached(t *testing.T) {
	next := &mockStore{getFunc: func(ctx context.Context, service string) (ProviderConfig, error) {
		return ProviderConfig{}, ErrNotFound
	}}

	c := NewCached(next, time.Minute)
	defer c.Close()

	for range 2 {
		_, err := c.Get(t.Context(), "google")
		require.ErrorIs(t, err, ErrNotFound)
		c.Wait()
	}
	assert.Equal(t, 2, next.calls)
}
