// Package registry decouples the core from concrete entity implementations.
// The host application registers exactly one concrete struct type per
// abstract role at startup and passes the registry explicitly to whatever
// needs to instantiate entities; there is no package-level global.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Role names one of the abstract entity roles the core knows about.
type Role string

const (
	RoleUser       Role = "user"
	RolePermission Role = "permission"
	RoleGroup      Role = "group"
	RoleBundle     Role = "bundle"
)

// Registration failure kinds. All are fatal misconfiguration: registration
// happens once at application startup and must not be swallowed.
var (
	ErrUnknownRole       = errors.New("attempting to register unknown role")
	ErrAlreadyRegistered = errors.New("entity type already registered")
	ErrNotAStruct        = errors.New("entity prototype must be a struct type")
	ErrNotRegistered     = errors.New("no entity type registered")
)

var knownRoles = map[Role]struct{}{
	RoleUser:       {},
	RolePermission: {},
	RoleGroup:      {},
	RoleBundle:     {},
}

// Registry maps abstract roles to the concrete entity types supplied by the
// host application. Safe for concurrent reads after startup registration.
type Registry struct {
	mu    sync.RWMutex
	types map[Role]reflect.Type
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{types: make(map[Role]reflect.Type)}
}

// Register binds role to the concrete type of prototype. The prototype must
// be a struct value or a pointer to one; passing a function, instance of a
// non-struct kind, or nil fails with ErrNotAStruct. A role can be bound
// exactly once.
func (r *Registry) Register(role Role, prototype any) error {
	if _, ok := knownRoles[role]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownRole, role)
	}

	t := reflect.TypeOf(prototype)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w (got %T)", ErrNotAStruct, prototype)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[role]; ok {
		return fmt.Errorf("%w for %s", ErrAlreadyRegistered, role)
	}
	r.types[role] = t
	return nil
}

// RegisterUser binds the user role.
func (r *Registry) RegisterUser(prototype any) error {
	return r.Register(RoleUser, prototype)
}

// RegisterPermission binds the permission role.
func (r *Registry) RegisterPermission(prototype any) error {
	return r.Register(RolePermission, prototype)
}

// RegisterGroup binds the group role.
func (r *Registry) RegisterGroup(prototype any) error {
	return r.Register(RoleGroup, prototype)
}

// RegisterBundle binds the bundle role.
func (r *Registry) RegisterBundle(prototype any) error {
	return r.Register(RoleBundle, prototype)
}

// IsRegistered reports whether a type is bound to role.
func (r *Registry) IsRegistered(role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[role]
	return ok
}

// Get returns the concrete type bound to role.
func (r *Registry) Get(role Role) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[role]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNotRegistered, role)
	}
	return t, nil
}

// NewOf returns a pointer to a freshly allocated zero value of the type
// bound to role.
func (r *Registry) NewOf(role Role) (any, error) {
	t, err := r.Get(role)
	if err != nil {
		return nil, err
	}
	return reflect.New(t).Interface(), nil
}
