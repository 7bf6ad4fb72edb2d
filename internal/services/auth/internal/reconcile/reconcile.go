// Package reconcile links a verified provider identity to a local user,
// creating the user on first login.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gamma-omg/nativeauth/internal/services/auth/internal/store"
	"github.com/google/uuid"
)

var (
	ErrNoServiceID = errors.New("service data has no id")
	// ErrBusy is returned when another login for the same identity holds the lock.
	ErrBusy = errors.New("identity is being reconciled by another login")
)

// Locker serializes work on one key across service instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Reconciler struct {
	store  store.Store
	locker Locker
	newID  func() string
}

type Option func(*Reconciler) *Reconciler

func WithLocker(l Locker) Option {
	return func(r *Reconciler) *Reconciler {
		r.locker = l
		return r
	}
}

func New(st store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store: st,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		r = opt(r)
	}

	if r.store == nil {
		panic("store is required")
	}

	return r
}

// Reconcile finds the user linked to (provider, data id) and overwrites the
// stored service fields, or creates a user when there is none. email is added
// with set semantics and skipped when its address is empty.
func (r *Reconciler) Reconcile(ctx context.Context, provider string, data store.ServiceData, email store.Email) (string, error) {
	serviceID := data.Identity.ID()
	if serviceID == "" {
		return "", ErrNoServiceID
	}

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, provider+":"+serviceID)
		if err != nil {
			return "", fmt.Errorf("lock identity: %w", err)
		}
		defer unlock()
	}

	userID, err := r.reconcile(ctx, provider, serviceID, data, email)
	if errors.Is(err, store.ErrExists) {
		// Lost a first-login race: the identity is now linked, so update it.
		slog.Info("identity linked concurrently, retrying", "provider", provider)
		userID, err = r.reconcile(ctx, provider, serviceID, data, email)
	}
	if err != nil {
		return "", err
	}

	return userID, nil
}

func (r *Reconciler) reconcile(ctx context.Context, provider, serviceID string, data store.ServiceData, email store.Email) (string, error) {
	var userID string
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		usr, err := tx.FindUserByService(ctx, store.FindUserByServiceRequest{
			Provider:  provider,
			ServiceID: serviceID,
		})
		if err == nil {
			userID = usr.ID
			return r.update(ctx, tx, usr.ID, provider, data, email)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("find user: %w", err)
		}

		userID, err = r.insert(ctx, tx, provider, serviceID, data, email)
		return err
	})
	if err != nil {
		return "", err
	}

	return userID, nil
}

func (r *Reconciler) update(ctx context.Context, tx store.Store, userID, provider string, data store.ServiceData, email store.Email) error {
	req := store.UpdateServiceRequest{
		UserID:   userID,
		Provider: provider,
		Fields:   data.Fields(),
	}
	if email.Address != "" {
		req.Email = &email
	}

	if err := tx.UpdateService(ctx, req); err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

func (r *Reconciler) insert(ctx context.Context, tx store.Store, provider, serviceID string, data store.ServiceData, email store.Email) (string, error) {
	req := store.InsertUserRequest{
		ID:        r.newID(),
		Provider:  provider,
		ServiceID: serviceID,
		Fields:    data.Fields(),
		Name:      data.Identity.Name(),
	}
	if email.Address != "" {
		req.Emails = []store.Email{email}
	}

	id, err := tx.InsertUser(ctx, req)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}
