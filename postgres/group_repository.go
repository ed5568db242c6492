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

// GroupRepository persists groups and their permission/bundle attachments.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository builds the repository.
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// Create inserts a group; the name must be unique.
func (r *GroupRepository) Create(ctx context.Context, g *entity.Group) error {
	query := `INSERT INTO groups (id, name) VALUES ($1, $2)`
	if _, err := r.pool.Exec(ctx, query, g.ID, g.Name); err != nil {
		return fmt.Errorf("failed to create group: %w", mapUniqueViolation(err))
	}
	return nil
}

// FindByName fetches a group with permissions and bundles loaded.
func (r *GroupRepository) FindByName(ctx context.Context, name string) (*entity.Group, error) {
	query := `SELECT id, name, created_at, updated_at FROM groups WHERE name = $1`
	return r.find(ctx, r.pool.QueryRow(ctx, query, name))
}

// FindByID fetches a group with permissions and bundles loaded.
func (r *GroupRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Group, error) {
	query := `SELECT id, name, created_at, updated_at FROM groups WHERE id = $1`
	return r.find(ctx, r.pool.QueryRow(ctx, query, id))
}

// Delete removes a group; memberships and attachments cascade.
func (r *GroupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrGroupNotFound
	}
	return nil
}

// ReplacePermissions sets the group's direct permissions.
func (r *GroupRepository) ReplacePermissions(ctx context.Context, groupID uuid.UUID, permissionIDs []uuid.UUID) error {
	return replaceRelation(ctx, r.pool, "group_permissions", "group_id", "permission_id", groupID, permissionIDs)
}

// ReplaceBundles sets the bundles attached to the group.
func (r *GroupRepository) ReplaceBundles(ctx context.Context, groupID uuid.UUID, bundleIDs []uuid.UUID) error {
	return replaceRelation(ctx, r.pool, "group_bundles", "group_id", "bundle_id", groupID, bundleIDs)
}

func (r *GroupRepository) find(ctx context.Context, row pgx.Row) (*entity.Group, error) {
	g := &entity.Group{}
	err := row.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to scan group: %w", err)
	}

	perms, err := queryPermissionList(ctx, r.pool, `
		SELECT p.id, p.token, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN group_permissions gp ON gp.permission_id = p.id
		WHERE gp.group_id = $1
		ORDER BY p.token`, g.ID)
	if err != nil {
		return nil, err
	}
	g.Permissions = perms

	bundleRows, err := r.pool.Query(ctx, `
		SELECT b.id, b.name, b.created_at, b.updated_at
		FROM bundles b
		JOIN group_bundles gb ON gb.bundle_id = b.id
		WHERE gb.group_id = $1
		ORDER BY b.name`, g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group bundles: %w", err)
	}
	defer bundleRows.Close()

	for bundleRows.Next() {
		var b entity.Bundle
		if err := bundleRows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bundle row: %w", err)
		}
		g.Bundles = append(g.Bundles, b)
	}
	if err := bundleRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bundle rows: %w", err)
	}

	for i := range g.Bundles {
		perms, err := queryPermissionList(ctx, r.pool, `
			SELECT p.id, p.token, p.description, p.created_at, p.updated_at
			FROM permissions p
			JOIN bundle_permissions bp ON bp.permission_id = p.id
			WHERE bp.bundle_id = $1
			ORDER BY p.token`, g.Bundles[i].ID)
		if err != nil {
			return nil, err
		}
		g.Bundles[i].Permissions = perms
	}
	return g, nil
}
