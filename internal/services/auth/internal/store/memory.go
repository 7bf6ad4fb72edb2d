package store

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"
)

type serviceKey struct {
	provider  string
	serviceID string
}

type memoryState struct {
	users    map[string]User
	services map[serviceKey]string
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		users:    make(map[string]User, len(s.users)),
		services: maps.Clone(s.services),
	}
	for id, u := range s.users {
		c.users[id] = cloneUser(u)
	}
	return c
}

// Memory is an in-process Store with the same uniqueness rules as the
// Postgres schema. Writes are serialized with transactions, and WithTx
// restores the previous state when fn fails.
type Memory struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		state: memoryState{
			users:    make(map[string]User),
			services: make(map[serviceKey]string),
		},
		now: time.Now,
	}
}

func (m *Memory) FindUserByService(_ context.Context, r FindUserByServiceRequest) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.state.services[serviceKey{r.Provider, r.ServiceID}]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(m.state.users[id]), nil
}

func (m *Memory) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.state.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) UpdateService(_ context.Context, r UpdateServiceRequest) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	return m.updateService(r)
}

func (m *Memory) updateService(r UpdateServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.state.users[r.UserID]
	if !ok {
		return ErrNotFound
	}
	data, ok := u.Services[r.Provider]
	if !ok {
		return ErrNotFound
	}

	for k, v := range r.Fields {
		data[k] = v
	}
	if r.Email != nil {
		u.Emails = addEmail(u.Emails, *r.Email)
	}
	u.UpdatedAt = m.now()

	m.state.users[u.ID] = u
	return nil
}

func (m *Memory) InsertUser(_ context.Context, r InsertUserRequest) (string, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	return m.insertUser(r)
}

func (m *Memory) insertUser(r InsertUserRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := serviceKey{r.Provider, r.ServiceID}
	if _, ok := m.state.services[key]; ok {
		return "", ErrExists
	}
	if _, ok := m.state.users[r.ID]; ok {
		return "", ErrExists
	}

	now := m.now()
	u := User{
		Model:    Model{CreatedAt: now, UpdatedAt: now},
		ID:       r.ID,
		Services: map[string]map[string]any{r.Provider: maps.Clone(r.Fields)},
		Profile:  Profile{Name: r.Name},
	}
	for _, e := range r.Emails {
		u.Emails = addEmail(u.Emails, e)
	}

	m.state.users[u.ID] = u
	m.state.services[key] = u.ID
	return u.ID, nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.state.clone()
	m.mu.RUnlock()

	if err := fn(memoryTx{m}); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// memoryTx writes without taking txMu, which its WithTx already holds.
type memoryTx struct {
	*Memory
}

func (tx memoryTx) UpdateService(_ context.Context, r UpdateServiceRequest) error {
	return tx.updateService(r)
}

func (tx memoryTx) InsertUser(_ context.Context, r InsertUserRequest) (string, error) {
	return tx.insertUser(r)
}

func (memoryTx) WithTx(context.Context, func(tx Store) error) error {
	return errors.New("already in transaction")
}

func addEmail(emails []Email, e Email) []Email {
	if slices.Contains(emails, e) {
		return emails
	}
	return append(emails, e)
}

func cloneUser(u User) User {
	c := u
	c.Services = make(map[string]map[string]any, len(u.Services))
	for p, data := range u.Services {
		c.Services[p] = maps.Clone(data)
	}
	c.Emails = slices.Clone(u.Emails)
	return c
}
