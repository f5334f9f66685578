package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrpayroll/internal/platform/config"
)

// Seed makes sure the configured default organization exists.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	_, err := ensureTenant(ctx, pool, cfg.SeedTenantName, cfg.SeedTenantTaxID)
	return err
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name, taxID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("seed tenant name is empty")
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		if taxID != "" {
			_, err = pool.Exec(ctx, "UPDATE tenants SET tax_id = $1 WHERE id = $2 AND tax_id IS NULL", taxID, id)
		}
		return id, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	err = pool.QueryRow(ctx, "INSERT INTO tenants (name, tax_id) VALUES ($1, $2) RETURNING id", name, nullIfEmpty(taxID)).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
