// Package postgres implements the persistence collaborator on PostgreSQL
// via pgx. Repositories enforce uniqueness at the database and surface
// violations as the module's uniqueness-conflict error kind.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadandrail/keg-auth/config"
	domainErrors "github.com/roadandrail/keg-auth/errors"
)

// ActivePredicate is the SQL equivalent of entity.User.IsActive. Every
// query filtering on activity must use this constant so the in-memory and
// SQL evaluation paths cannot drift.
const ActivePredicate = "(is_enabled AND is_verified)"

const uniqueViolationCode = "23505"

// NewPool opens a pgx connection pool against the configured database.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// mapUniqueViolation converts a unique-constraint violation into the
// module's uniqueness-conflict kind, tagging the conflicting field when the
// constraint name makes it recognizable. Other errors pass through.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}
	// Constraint names follow the table_column_key convention from the
	// migrations, e.g. users_email_key, permissions_token_key.
	for _, field := range []string{"email", "username", "token", "name"} {
		if strings.Contains(pgErr.ConstraintName, "_"+field+"_") {
			return domainErrors.NewFieldConflict(field)
		}
	}
	return fmt.Errorf("constraint %s: %w", pgErr.ConstraintName, domainErrors.ErrUniquenessConflict)
}
