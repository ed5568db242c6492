// Package authz provides composable boolean conditions over permission
// tokens and custom predicates. A Condition is a small tagged-variant tree;
// evaluation is recursive and side-effect free.
package authz

import "github.com/roadandrail/keg-auth/entity"

// Predicate is a custom authorization check over the current principal.
// Predicate authors decide how to treat the anonymous sentinel; the
// principal passed in is never nil.
type Predicate func(p entity.Principal) bool

type kind uint8

const (
	kindAllOf kind = iota // zero value: empty AllOf, evaluates true
	kindAnyOf
	kindToken
	kindPredicate
)

// Condition is a boolean expression tree gating an operation. The zero value
// is an empty AllOf and evaluates true for any principal.
type Condition struct {
	kind     kind
	token    string
	pred     Predicate
	children []Condition
}

// Token requires the principal to hold the given permission token.
func Token(token string) Condition {
	return Condition{kind: kindToken, token: token}
}

// Check wraps a custom predicate as a condition.
func Check(pred Predicate) Condition {
	return Condition{kind: kindPredicate, pred: pred}
}

// AllOf is true iff every child condition is true. With no children it is
// true.
func AllOf(children ...Condition) Condition {
	return Condition{kind: kindAllOf, children: children}
}

// AnyOf is true iff at least one child condition is true. With no children
// it is false.
func AnyOf(children ...Condition) Condition {
	return Condition{kind: kindAnyOf, children: children}
}

// HasAll requires every token in the list. Convenience over AllOf+Token.
func HasAll(tokens ...string) Condition {
	children := make([]Condition, len(tokens))
	for i, t := range tokens {
		children[i] = Token(t)
	}
	return AllOf(children...)
}

// HasAny requires at least one token from the list. Convenience over
// AnyOf+Token.
func HasAny(tokens ...string) Condition {
	children := make([]Condition, len(tokens))
	for i, t := range tokens {
		children[i] = Token(t)
	}
	return AnyOf(children...)
}

// Evaluate walks the tree against p. AllOf stops at the first false child
// and AnyOf at the first true one, so expensive child predicates after the
// deciding one are never invoked. A nil principal is treated as the
// anonymous sentinel, for which every token condition is false.
func (c Condition) Evaluate(p entity.Principal) bool {
	if p == nil {
		p = entity.Anonymous
	}
	switch c.kind {
	case kindToken:
		return p.HasPermission(c.token)
	case kindPredicate:
		return c.pred != nil && c.pred(p)
	case kindAnyOf:
		for _, child := range c.children {
			if child.Evaluate(p) {
				return true
			}
		}
		return false
	default: // kindAllOf
		for _, child := range c.children {
			if !child.Evaluate(p) {
				return false
			}
		}
		return true
	}
}
