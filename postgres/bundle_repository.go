package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadandrail/keg-auth/entity"
	domainErrors "github.com/roadandrail/keg-auth/errors"
)

// BundleRepository persists bundles and their permission attachments.
type BundleRepository struct {
	pool *pgxpool.Pool
}

// NewBundleRepository builds the repository.
func NewBundleRepository(pool *pgxpool.Pool) *BundleRepository {
	return &BundleRepository{pool: pool}
}

// Create inserts a bundle; the name must be unique.
func (r *BundleRepository) Create(ctx context.Context, b *entity.Bundle) error {
	query := `INSERT INTO bundles (id, name) VALUES ($1, $2)`
	if _, err := r.pool.Exec(ctx, query, b.ID, b.Name); err != nil {
		return fmt.Errorf("failed to create bundle: %w", mapUniqueViolation(err))
	}
	return nil
}

// FindByName fetches a bundle with its permissions loaded.
func (r *BundleRepository) FindByName(ctx context.Context, name string) (*entity.Bundle, error) {
	query := `SELECT id, name, created_at, updated_at FROM bundles WHERE name = $1`
	return r.find(ctx, r.pool.QueryRow(ctx, query, name))
}

// FindByID fetches a bundle with its permissions loaded.
func (r *BundleRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Bundle, error) {
	query := `SELECT id, name, created_at, updated_at FROM bundles WHERE id = $1`
	return r.find(ctx, r.pool.QueryRow(ctx, query, id))
}

// Delete removes a bundle; attachments cascade.
func (r *BundleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM bundles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrBundleNotFound
	}
	return nil
}

// ReplacePermissions sets the bundle's permissions.
func (r *BundleRepository) ReplacePermissions(ctx context.Context, bundleID uuid.UUID, permissionIDs []uuid.UUID) error {
	return replaceRelation(ctx, r.pool, "bundle_permissions", "bundle_id", "permission_id", bundleID, permissionIDs)
}

func (r *BundleRepository) find(ctx context.Context, row pgx.Row) (*entity.Bundle, error) {
	b := &entity.Bundle{}
	err := row.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBundleNotFound
		}
		return nil, fmt.Errorf("failed to scan bundle: %w", err)
	}

	perms, err := queryPermissionList(ctx, r.pool, `
		SELECT p.id, p.token, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN bundle_permissions bp ON bp.permission_id = p.id
		WHERE bp.bundle_id = $1
		ORDER BY p.token`, b.ID)
	if err != nil {
		return nil, err
	}
	b.Permissions = perms
	return b, nil
}
