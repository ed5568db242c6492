package entity

import (
	"time"

	"github.com/google/uuid"
)

// Group is a named collection of users, mapping to the "groups" table.
// Permissions reach its members directly or through attached bundles.
type Group struct {
	ID        uuid.UUID  `db:"id"`
	Name      string     `db:"name"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"` // Nullable

	Permissions []Permission
	Bundles     []Bundle
}

// AllPermissions returns the group's direct permissions unioned with the
// permissions of its attached bundles, de-duplicated by ID. Groups do not
// nest, so there is no deeper recursion.
func (g *Group) AllPermissions() []Permission {
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
	add(g.Permissions)
	for _, b := range g.Bundles {
		add(b.Permissions)
	}
	return perms
}
