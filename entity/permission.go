package entity

import (
	"time"

	"github.com/google/uuid"
)

// Permission is the atomic authorization unit, mapping to the "permissions"
// table. Token is the stable string identifier referenced from code;
// Description is for humans.
type Permission struct {
	ID          uuid.UUID  `db:"id"`
	Token       string     `db:"token"`
	Description string     `db:"description"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at"` // Nullable
}
