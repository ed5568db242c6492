package entity

import (
	"time"

	"github.com/google/uuid"
)

// Bundle is a named, reusable set of permissions attachable to users and
// groups, mapping to the "bundles" table. Bundles do not reference other
// bundles.
type Bundle struct {
	ID        uuid.UUID  `db:"id"`
	Name      string     `db:"name"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"` // Nullable

	Permissions []Permission
}
