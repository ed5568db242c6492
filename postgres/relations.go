package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadandrail/keg-auth/entity"
)

// replaceRelation rewrites a many-to-many join table for one owner inside a
// transaction: delete the owner's rows, insert the new set. The table and
// column names are compile-time constants at every call site.
func replaceRelation(ctx context.Context, pool *pgxpool.Pool, table, ownerCol, relatedCol string, ownerID uuid.UUID, relatedIDs []uuid.UUID) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, ownerCol), ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for _, id := range relatedIDs {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, table, ownerCol, relatedCol),
			ownerID, id); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit(ctx)
}

// queryPermissionList runs a permission query keyed by one owner ID.
func queryPermissionList(ctx context.Context, pool *pgxpool.Pool, query string, ownerID uuid.UUID) ([]entity.Permission, error) {
	rows, err := pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
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
