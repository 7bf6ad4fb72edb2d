package svcconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres reads configurations from the service_configurations table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, service string) (ProviderConfig, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT service, client_id, secret, valid_client_ids
		 FROM service_configurations
		 WHERE service=$1`, service)

	var cfg ProviderConfig
	err := row.Scan(&cfg.Service, &cfg.ClientID, &cfg.Secret, pq.Array(&cfg.ValidClientIDs))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProviderConfig{}, ErrNotFound
		}
		return ProviderConfig{}, fmt.Errorf("scan: %w", err)
	}

	return cfg, nil
}
