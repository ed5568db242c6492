// Package metrics exposes Prometheus collectors for the authorization core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Guard decision outcome labels.
const (
	OutcomeAllowed    = "allowed"
	OutcomeAuthFailed = "authentication_failed"
	OutcomeForbidden  = "authorization_failed"
)

// Token verification result labels.
const (
	TokenValid   = "valid"
	TokenInvalid = "invalid"
)

// Metrics bundles the counters maintained by the guard and the security
// token issuer. Components treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	GuardDecisions     *prometheus.CounterVec
	TokenVerifications *prometheus.CounterVec
}

// New registers the collectors with reg and returns them. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "guard_decisions_total",
			Help:      "Authorization guard decisions by outcome.",
		}, []string{"outcome"}),
		TokenVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "security_token_verifications_total",
			Help:      "Security token verification attempts by result.",
		}, []string{"result"}),
	}
}

// ObserveDecision records a guard outcome. Nil-safe.
func (m *Metrics) ObserveDecision(outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(outcome).Inc()
}

// ObserveTokenVerification records a token verification result. Nil-safe.
func (m *Metrics) ObserveTokenVerification(result string) {
	if m == nil {
		return
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}
