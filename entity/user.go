package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record at the center of the authorization graph,
// mapping to the "users" table. The relation slices hold the loaded
// many-to-many edges; repositories populate them when fetching a user.
type User struct {
	ID              uuid.UUID  `db:"id"`
	Email           string     `db:"email"`
	Username        *string    `db:"username"` // Nullable, alternate login identifier
	PasswordHash    string     `db:"password_hash"`
	IsEnabled       bool       `db:"is_enabled"`
	IsVerified      bool       `db:"is_verified"`
	IsSuperuser     bool       `db:"is_superuser"`
	TokenHash       *string    `db:"token_hash"`        // Nullable
	TokenCreatedUTC *time.Time `db:"token_created_utc"` // Nullable
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at"` // Nullable

	Permissions []Permission // directly assigned
	Bundles     []Bundle     // directly assigned
	Groups      []Group
}

// IsActive reports whether the user may authenticate. Must stay in lockstep
// with the SQL predicate used by the persistence layer (see postgres
// ActivePredicate): active iff enabled and verified.
func (u *User) IsActive() bool {
	return u.IsEnabled && u.IsVerified
}

// IsAuthenticated satisfies Principal. A concrete User in hand is always an
// authenticated principal; the anonymous case is represented by Anonymous.
func (u *User) IsAuthenticated() bool {
	return true
}

// EffectivePermissionTokens returns the de-duplicated set of permission
// tokens reachable through every authorization path: direct permissions,
// bundles assigned to the user, groups the user belongs to, and bundles
// attached to those groups. Superuser status does not inflate this set.
func (u *User) EffectivePermissionTokens() map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, p := range u.Permissions {
		tokens[p.Token] = struct{}{}
	}
	for _, b := range u.Bundles {
		for _, p := range b.Permissions {
			tokens[p.Token] = struct{}{}
		}
	}
	for _, g := range u.Groups {
		for _, p := range g.Permissions {
			tokens[p.Token] = struct{}{}
		}
		for _, b := range g.Bundles {
			for _, p := range b.Permissions {
				tokens[p.Token] = struct{}{}
			}
		}
	}
	return tokens
}

// EffectivePermissions returns the union of permission entities behind
// EffectivePermissionTokens, de-duplicated by ID.
func (u *User) EffectivePermissions() []Permission {
	seen := make(map[uuid.UUID]struct{})
	var perms []Permission
	add := func(ps []Permission) {
		for _, p := range ps {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			perms = append(perms, p)
		}
	}
	add(u.Permissions)
	for _, b := range u.Bundles {
		add(b.Permissions)
	}
	for _, g := range u.Groups {
		add(g.Permissions)
		for _, b := range g.Bundles {
			add(b.Permissions)
		}
	}
	return perms
}

// HasPermission reports whether token is in the user's effective permission
// set. Superusers pass every check without the set being consulted.
func (u *User) HasPermission(token string) bool {
	if u.IsSuperuser {
		return true
	}
	_, ok := u.EffectivePermissionTokens()[token]
	return ok
}

// HasAllPermissions reports whether every token is held.
func (u *User) HasAllPermissions(tokens ...string) bool {
	if u.IsSuperuser {
		return true
	}
	held := u.EffectivePermissionTokens()
	for _, t := range tokens {
		if _, ok := held[t]; !ok {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether at least one token is held. An empty
// argument list is false.
func (u *User) HasAnyPermission(tokens ...string) bool {
	if u.IsSuperuser {
		return len(tokens) > 0
	}
	held := u.EffectivePermissionTokens()
	for _, t := range tokens {
		if _, ok := held[t]; ok {
			return true
		}
	}
	return false
}
