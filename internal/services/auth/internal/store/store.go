package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a provider identity is already linked to a user.
	ErrExists = errors.New("already exists")
)

type Store interface {
	FindUserByService(ctx context.Context, r FindUserByServiceRequest) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateService(ctx context.Context, r UpdateServiceRequest) error
	InsertUser(ctx context.Context, r InsertUserRequest) (string, error)
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type FindUserByServiceRequest struct {
	Provider  string
	ServiceID string
}

// UpdateServiceRequest sets every key of Fields on the user's service record
// and adds Email to the user's emails unless it is nil or already present.
type UpdateServiceRequest struct {
	UserID   string
	Provider string
	Fields   map[string]any
	Email    *Email
}

type InsertUserRequest struct {
	ID        string
	Provider  string
	ServiceID string
	Fields    map[string]any
	Name      string
	Emails    []Email
}
