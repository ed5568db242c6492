package entity

// Principal is the party an authorization decision is made for: either an
// authenticated *User or the Anonymous sentinel. Condition evaluation and
// guard decisions only ever see this interface.
type Principal interface {
	// IsAuthenticated reports whether the principal is a real,
	// authenticated identity.
	IsAuthenticated() bool

	// HasPermission reports whether the principal holds the permission
	// token through any authorization path.
	HasPermission(token string) bool
}

// Anonymous is the well-defined "no authenticated user" sentinel. It is
// never authenticated and holds no permissions.
var Anonymous Principal = anonymous{}

type anonymous struct{}

func (anonymous) IsAuthenticated() bool     { return false }
func (anonymous) HasPermission(string) bool { return false }
