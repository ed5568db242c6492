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

// PermissionRepository persists the atomic authorization units.
type PermissionRepository struct {
	pool *pgxpool.Pool
}

// NewPermissionRepository builds the repository.
func NewPermissionRepository(pool *pgxpool.Pool) *PermissionRepository {
	return &PermissionRepository{pool: pool}
}

// Create inserts a permission; the token must be unique.
func (r *PermissionRepository) Create(ctx context.Context, p *entity.Permission) error {
	query := `INSERT INTO permissions (id, token, description) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, query, p.ID, p.Token, p.Description); err != nil {
		return fmt.Errorf("failed to create permission: %w", mapUniqueViolation(err))
	}
	return nil
}

// FindByToken fetches a permission by its stable token.
func (r *PermissionRepository) FindByToken(ctx context.Context, token string) (*entity.Permission, error) {
	query := `SELECT id, token, description, created_at, updated_at FROM permissions WHERE token = $1`
	return r.scan(r.pool.QueryRow(ctx, query, token))
}

// FindByID fetches a permission by ID.
func (r *PermissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Permission, error) {
	query := `SELECT id, token, description, created_at, updated_at FROM permissions WHERE id = $1`
	return r.scan(r.pool.QueryRow(ctx, query, id))
}

// List returns every permission, ordered by token. This is the "universe of
// all permissions" a superuser implicitly holds.
func (r *PermissionRepository) List(ctx context.Context) ([]entity.Permission, error) {
	query := `SELECT id, token, description, created_at, updated_at FROM permissions ORDER BY token`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []entity.Permission
	for rows.Next() {
		var p entity.Permission
		if err := rows.Scan(&p.ID, &p.Token, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission row: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}
	return perms, nil
}

// Delete removes a permission; join rows cascade.
func (r *PermissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrPermissionNotFound
	}
	return nil
}

func (r *PermissionRepository) scan(row pgx.Row) (*entity.Permission, error) {
	p := &entity.Permission{}
	err := row.Scan(&p.ID, &p.Token, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to scan permission: %w", err)
	}
	return p, nil
}
