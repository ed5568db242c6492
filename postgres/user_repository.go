package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/entity"
	domainErrors "github.com/roadandrail/keg-auth/errors"
)

// UserRepository persists users and loads the full authorization graph
// around them: direct permissions, bundles, groups, and the permissions and
// bundles of those groups.
type UserRepository struct {
	pool            *pgxpool.Pool
	logger          *zap.Logger
	identifierField string
}

// NewUserRepository builds the repository. identifierField selects the
// login column ("email" or "username") used by FindByIdentifier.
func NewUserRepository(pool *pgxpool.Pool, identifierField string, logger *zap.Logger) *UserRepository {
	if identifierField != "email" && identifierField != "username" {
		identifierField = "email"
	}
	return &UserRepository{pool: pool, logger: logger, identifierField: identifierField}
}

const userColumns = `id, email, username, password_hash, is_enabled, is_verified, is_superuser,
	token_hash, token_created_utc, created_at, updated_at`

// Create inserts the user. Email is stored lowercased so the login
// identifier stays case-insensitively unique.
func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	query := `
		INSERT INTO users (id, email, username, password_hash, is_enabled, is_verified, is_superuser,
			token_hash, token_created_utc)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		u.ID, u.Email, u.Username, u.PasswordHash, u.IsEnabled, u.IsVerified, u.IsSuperuser,
		u.TokenHash, u.TokenCreatedUTC,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapUniqueViolation(err))
	}
	return nil
}

// FindByID fetches a user with all relations loaded.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	u, err := r.scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByIdentifier fetches a user by the configured login column,
// case-insensitively, with all relations loaded.
func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*entity.User, error) {
	// identifierField is restricted to a known column name in the
	// constructor, so the interpolation cannot inject.
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(%s) = LOWER($1)`,
		userColumns, r.identifierField)
	u, err := r.scanUser(r.pool.QueryRow(ctx, query, identifier))
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Update persists the mutable credential, status, and token fields.
func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	query := `
		UPDATE users
		SET email = LOWER($1), username = $2, password_hash = $3, is_enabled = $4,
			is_verified = $5, is_superuser = $6, token_hash = $7, token_created_utc = $8,
			updated_at = NOW()
		WHERE id = $9
	`
	result, err := r.pool.Exec(ctx, query,
		u.Email, u.Username, u.PasswordHash, u.IsEnabled, u.IsVerified, u.IsSuperuser,
		u.TokenHash, u.TokenCreatedUTC, u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapUniqueViolation(err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}

// Delete removes the user; join rows go with it via ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}

// ListActive returns users satisfying the shared active predicate. This is
// the SQL twin of entity.User.IsActive.
func (r *UserRepository) ListActive(ctx context.Context) ([]*entity.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY email`,
		userColumns, ActivePredicate)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()
	return r.collectUsers(rows)
}

// List returns all users without relations.
func (r *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY email`, userColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return r.collectUsers(rows)
}

// EffectivePermissionTokens resolves the user's effective permission set
// server-side in one round trip: the union of the four authorization paths,
// de-duplicated by UNION. It intentionally ignores superuser status; that
// short-circuit lives in the entity, not the data.
func (r *UserRepository) EffectivePermissionTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT p.token FROM permissions p
			JOIN user_permissions up ON up.permission_id = p.id
			WHERE up.user_id = $1
		UNION
		SELECT p.token FROM permissions p
			JOIN bundle_permissions bp ON bp.permission_id = p.id
			JOIN user_bundles ub ON ub.bundle_id = bp.bundle_id
			WHERE ub.user_id = $1
		UNION
		SELECT p.token FROM permissions p
			JOIN group_permissions gp ON gp.permission_id = p.id
			JOIN user_groups ug ON ug.group_id = gp.group_id
			WHERE ug.user_id = $1
		UNION
		SELECT p.token FROM permissions p
			JOIN bundle_permissions bp ON bp.permission_id = p.id
			JOIN group_bundles gb ON gb.bundle_id = bp.bundle_id
			JOIN user_groups ug ON ug.group_id = gb.group_id
			WHERE ug.user_id = $1
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective permissions: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan permission token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission tokens: %w", err)
	}
	return tokens, nil
}

// ReplacePermissions sets the user's direct permissions to exactly the
// given IDs, transactionally.
func (r *UserRepository) ReplacePermissions(ctx context.Context, userID uuid.UUID, permissionIDs []uuid.UUID) error {
	return replaceRelation(ctx, r.pool, "user_permissions", "user_id", "permission_id", userID, permissionIDs)
}

// ReplaceGroups sets the user's group memberships.
func (r *UserRepository) ReplaceGroups(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID) error {
	return replaceRelation(ctx, r.pool, "user_groups", "user_id", "group_id", userID, groupIDs)
}

// ReplaceBundles sets the user's directly assigned bundles.
func (r *UserRepository) ReplaceBundles(ctx context.Context, userID uuid.UUID, bundleIDs []uuid.UUID) error {
	return replaceRelation(ctx, r.pool, "user_bundles", "user_id", "bundle_id", userID, bundleIDs)
}

func (r *UserRepository) scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsEnabled, &u.IsVerified,
		&u.IsSuperuser, &u.TokenHash, &u.TokenCreatedUTC, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) collectUsers(rows pgx.Rows) ([]*entity.User, error) {
	var users []*entity.User
	for rows.Next() {
		u := &entity.User{}
		err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsEnabled, &u.IsVerified,
			&u.IsSuperuser, &u.TokenHash, &u.TokenCreatedUTC, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// loadRelations populates the user's permission graph: direct permissions,
// direct bundles (with their permissions), and groups (with their
// permissions and bundles).
func (r *UserRepository) loadRelations(ctx context.Context, u *entity.User) error {
	perms, err := queryPermissionList(ctx, r.pool, `
		SELECT p.id, p.token, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1
		ORDER BY p.token`, u.ID)
	if err != nil {
		return err
	}
	u.Permissions = perms

	bundles, err := r.loadBundles(ctx, `
		SELECT b.id, b.name, b.created_at, b.updated_at
		FROM bundles b
		JOIN user_bundles ub ON ub.bundle_id = b.id
		WHERE ub.user_id = $1
		ORDER BY b.name`, u.ID)
	if err != nil {
		return err
	}
	u.Bundles = bundles

	groups, err := r.loadGroups(ctx, u.ID)
	if err != nil {
		return err
	}
	u.Groups = groups
	return nil
}

func (r *UserRepository) loadGroups(ctx context.Context, userID uuid.UUID) ([]entity.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.created_at, g.updated_at
		FROM groups g
		JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = $1
		ORDER BY g.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	defer rows.Close()

	var groups []entity.Group
	for rows.Next() {
		var g entity.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}

	for i := range groups {
		perms, err := queryPermissionList(ctx, r.pool, `
			SELECT p.id, p.token, p.description, p.created_at, p.updated_at
			FROM permissions p
			JOIN group_permissions gp ON gp.permission_id = p.id
			WHERE gp.group_id = $1
			ORDER BY p.token`, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Permissions = perms

		bundles, err := r.loadBundles(ctx, `
			SELECT b.id, b.name, b.created_at, b.updated_at
			FROM bundles b
			JOIN group_bundles gb ON gb.bundle_id = b.id
			WHERE gb.group_id = $1
			ORDER BY b.name`, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Bundles = bundles
	}
	return groups, nil
}

func (r *UserRepository) loadBundles(ctx context.Context, query string, ownerID uuid.UUID) ([]entity.Bundle, error) {
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundles: %w", err)
	}
	defer rows.Close()

	var bundles []entity.Bundle
	for rows.Next() {
		var b entity.Bundle
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bundle row: %w", err)
		}
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bundle rows: %w", err)
	}

	for i := range bundles {
		perms, err := queryPermissionList(ctx, r.pool, `
			SELECT p.id, p.token, p.description, p.created_at, p.updated_at
			FROM permissions p
			JOIN bundle_permissions bp ON bp.permission_id = p.id
			WHERE bp.bundle_id = $1
			ORDER BY p.token`, bundles[i].ID)
		if err != nil {
			return nil, err
		}
		bundles[i].Permissions = perms
	}
	return bundles, nil
}
