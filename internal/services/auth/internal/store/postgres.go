package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	errUniqueViolation = "23505"
	errInvalidTextRepr = "22P02"
)

// dbtx defines the interface for database and transactions
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresConfig holds the configuration for connecting to a Postgres database
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
}

// PostgresStore implements the Store interface using a Postgres database
type PostgresStore struct {
	db dbtx
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DB))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindUserByService retrieves the user linked to a provider identity
func (s *PostgresStore) FindUserByService(ctx context.Context, r FindUserByServiceRequest) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM user_services WHERE provider=$1 AND service_id=$2",
		r.Provider,
		r.ServiceID).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}

		return User{}, fmt.Errorf("scan: %w", err)
	}

	return s.GetUser(ctx, userID)
}

// GetUser retrieves a user with all linked services and emails
func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	usr := User{
		ID:       id,
		Services: make(map[string]map[string]any),
	}

	err := s.db.QueryRowContext(ctx,
		"SELECT profile_name, created_at, updated_at FROM users WHERE id=$1", id).Scan(
		&usr.Profile.Name,
		&usr.CreatedAt,
		&usr.UpdatedAt)
	if err != nil {
		// ids that are not uuids cannot name a user
		if errors.Is(err, sql.ErrNoRows) || isPqErr(err, errInvalidTextRepr) {
			return User{}, ErrNotFound
		}

		return User{}, fmt.Errorf("scan user: %w", err)
	}

	if err := s.loadServices(ctx, &usr); err != nil {
		return User{}, err
	}

	if err := s.loadEmails(ctx, &usr); err != nil {
		return User{}, err
	}

	return usr, nil
}

func (s *PostgresStore) loadServices(ctx context.Context, usr *User) error {
	rows, err := s.db.QueryContext(ctx, "SELECT provider, data FROM user_services WHERE user_id=$1", usr.ID)
	if err != nil {
		return fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			provider string
			raw      []byte
		)
		if err := rows.Scan(&provider, &raw); err != nil {
			return fmt.Errorf("scan service: %w", err)
		}

		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode %s service data: %w", provider, err)
		}
		usr.Services[provider] = data
	}

	return rows.Err()
}

func (s *PostgresStore) loadEmails(ctx context.Context, usr *User) error {
	rows, err := s.db.QueryContext(ctx, "SELECT address, verified FROM user_emails WHERE user_id=$1 ORDER BY id", usr.ID)
	if err != nil {
		return fmt.Errorf("query emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Email
		if err := rows.Scan(&e.Address, &e.Verified); err != nil {
			return fmt.Errorf("scan email: %w", err)
		}
		usr.Emails = append(usr.Emails, e)
	}

	return rows.Err()
}

// UpdateService merges the given fields into the user's service record
func (s *PostgresStore) UpdateService(ctx context.Context, r UpdateServiceRequest) error {
	patch, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("encode service data: %w", err)
	}

	return s.atomic(ctx, func(s *PostgresStore) error {
		return s.updateService(ctx, r, patch)
	})
}

func (s *PostgresStore) updateService(ctx context.Context, r UpdateServiceRequest, patch []byte) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_services SET data = data || $3::jsonb, updated_at=now() WHERE user_id=$1 AND provider=$2",
		r.UserID,
		r.Provider,
		string(patch))
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE users SET updated_at=now() WHERE id=$1", r.UserID); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}

	if r.Email != nil {
		if err := s.addEmail(ctx, r.UserID, *r.Email); err != nil {
			return err
		}
	}

	return nil
}

// InsertUser creates a user linked to a provider identity and returns its ID
func (s *PostgresStore) InsertUser(ctx context.Context, r InsertUserRequest) (string, error) {
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return "", fmt.Errorf("encode service data: %w", err)
	}

	var id string
	err = s.atomic(ctx, func(s *PostgresStore) error {
		var txErr error
		id, txErr = s.insertUser(ctx, r, data)
		return txErr
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

func (s *PostgresStore) insertUser(ctx context.Context, r InsertUserRequest, data []byte) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (id, profile_name) VALUES ($1, $2) RETURNING id",
		r.ID,
		r.Name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO user_services (user_id, provider, service_id, data) VALUES ($1, $2, $3, $4::jsonb)",
		id,
		r.Provider,
		r.ServiceID,
		string(data))
	if err != nil {
		if isPqErr(err, errUniqueViolation) {
			return "", ErrExists
		}

		return "", fmt.Errorf("insert service: %w", err)
	}

	for _, e := range r.Emails {
		if err := s.addEmail(ctx, id, e); err != nil {
			return "", err
		}
	}

	return id, nil
}

func (s *PostgresStore) addEmail(ctx context.Context, userID string, e Email) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_emails (user_id, address, verified) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		userID,
		e.Address,
		e.Verified)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}

	return nil
}

// WithTx executes the given function within a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	sx := &PostgresStore{db: tx}
	if err = fn(sx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}

		return fmt.Errorf("transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// atomic runs fn in a new transaction unless s is already bound to one.
func (s *PostgresStore) atomic(ctx context.Context, fn func(s *PostgresStore) error) error {
	if _, ok := s.db.(*sql.DB); !ok {
		return fn(s)
	}

	return s.WithTx(ctx, func(tx Store) error {
		return fn(tx.(*PostgresStore))
	})
}

func isPqErr(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
