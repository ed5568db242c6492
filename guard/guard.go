// Package guard is the enforcement boundary wrapping protected operations.
// A Guard pairs an authentication check with a permission condition; the
// decision logic is a pure function over the current principal, and the gin
// adapters in middleware.go map outcomes onto responses.
package guard

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/authz"
	"github.com/roadandrail/keg-auth/entity"
	"github.com/roadandrail/keg-auth/metrics"
)

// Outcome is the result of a guard decision. Decisions are control-flow
// outcomes, never errors: callers always get an explicit allow/deny.
type Outcome int

const (
	// Allowed: authenticated and the condition holds.
	Allowed Outcome = iota
	// AuthenticationFailed: no principal, or the principal is anonymous.
	AuthenticationFailed
	// AuthorizationFailed: authenticated but the condition is false.
	AuthorizationFailed
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case AuthenticationFailed:
		return "authentication_failed"
	case AuthorizationFailed:
		return "authorization_failed"
	}
	return "unknown"
}

// Guard decides whether a principal may proceed. The zero condition (empty
// AllOf) makes it a pure authentication guard.
type Guard struct {
	condition   authz.Condition
	logger      *zap.Logger
	metrics     *metrics.Metrics
	loginURL    string
	onAuthnFail gin.HandlerFunc
	onAuthzFail gin.HandlerFunc
	exempt      map[string]struct{}
}

// Option customizes a Guard.
type Option func(*Guard)

// WithLogger attaches a logger; denials are logged at warn.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithMetrics records decision outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithLoginURL makes the default authentication-failure response a redirect
// to the given URL instead of a 401.
func WithLoginURL(url string) Option {
	return func(g *Guard) { g.loginURL = url }
}

// OnAuthenticationFailure overrides the authentication-failure response.
func OnAuthenticationFailure(h gin.HandlerFunc) Option {
	return func(g *Guard) { g.onAuthnFail = h }
}

// OnAuthorizationFailure overrides the authorization-failure response.
func OnAuthorizationFailure(h gin.HandlerFunc) Option {
	return func(g *Guard) { g.onAuthzFail = h }
}

// RequireUser returns a guard that only demands an authenticated principal.
func RequireUser(opts ...Option) *Guard {
	return RequirePermissions(authz.AllOf(), opts...)
}

// RequirePermissions returns a guard demanding authentication plus the
// given condition.
func RequirePermissions(condition authz.Condition, opts ...Option) *Guard {
	g := &Guard{
		condition: condition,
		logger:    zap.NewNop(),
		exempt:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide evaluates the guard against p. Authentication is checked first;
// the condition is only evaluated for authenticated principals.
func (g *Guard) Decide(p entity.Principal) Outcome {
	if p == nil {
		p = entity.Anonymous
	}
	if !p.IsAuthenticated() {
		g.metrics.ObserveDecision(metrics.OutcomeAuthFailed)
		return AuthenticationFailed
	}
	if !g.condition.Evaluate(p) {
		g.metrics.ObserveDecision(metrics.OutcomeForbidden)
		return AuthorizationFailed
	}
	g.metrics.ObserveDecision(metrics.OutcomeAllowed)
	return Allowed
}
