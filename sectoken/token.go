// Package sectoken issues and verifies the single-use, time-limited tokens
// used by password-reset and account-verification links. Only a digest of
// the token is ever stored; the plaintext exists once, in the generated
// link.
package sectoken

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/roadandrail/keg-auth/entity"
	"github.com/roadandrail/keg-auth/metrics"
)

// DefaultWindow is the expiration window applied when the host does not
// configure one.
const DefaultWindow = 240 * time.Minute

const defaultTokenBytes = 32

// Clock supplies the current time. Injectable so expiration tests can run
// against simulated time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(i *Issuer) { i.clock = c }
}

// WithWindow sets the expiration window.
func WithWindow(d time.Duration) Option {
	return func(i *Issuer) { i.window = d }
}

// WithMetrics enables verification counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) { i.metrics = m }
}

// Issuer generates and verifies security tokens against the token fields of
// a user entity. Stateless apart from configuration; persistence of the
// mutated fields is the caller's job.
type Issuer struct {
	clock      Clock
	window     time.Duration
	tokenBytes int
	metrics    *metrics.Metrics
}

// NewIssuer returns an Issuer with the default window and system clock
// unless overridden by options.
func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		clock:      SystemClock(),
		window:     DefaultWindow,
		tokenBytes: defaultTokenBytes,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Generate creates a fresh random token for u, stores its digest and the
// issuance timestamp on the user, and returns the plaintext. The plaintext
// is not retrievable afterwards. Generating again before use overwrites the
// stored digest, implicitly invalidating the earlier token.
func (i *Issuer) Generate(u *entity.User) (string, error) {
	buf := make([]byte, i.tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(buf)

	digest := digestOf(plaintext)
	now := i.clock.Now().UTC()
	u.TokenHash = &digest
	u.TokenCreatedUTC = &now
	return plaintext, nil
}

// Verify reports whether candidate matches the outstanding token on u and
// the expiration window has not elapsed. It is deliberately tolerant: no
// token issued, an empty candidate, expiry, or a digest mismatch all return
// false and nothing ever panics on attacker-supplied garbage. Verification
// does not consume the token; call Clear for that.
func (i *Issuer) Verify(u *entity.User, candidate string) bool {
	ok := i.verify(u, candidate)
	if ok {
		i.metrics.ObserveTokenVerification(metrics.TokenValid)
	} else {
		i.metrics.ObserveTokenVerification(metrics.TokenInvalid)
	}
	return ok
}

func (i *Issuer) verify(u *entity.User, candidate string) bool {
	if u == nil || u.TokenHash == nil || u.TokenCreatedUTC == nil || candidate == "" {
		return false
	}
	if i.clock.Now().UTC().Sub(u.TokenCreatedUTC.UTC()) >= i.window {
		return false
	}
	digest := digestOf(candidate)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(*u.TokenHash)) == 1
}

// Clear removes the token state from u. This is the explicit consume step,
// invoked after a completed password change or verification; Verify alone
// never clears, so a reset form can be validated once to render and once on
// submit.
func (i *Issuer) Clear(u *entity.User) {
	u.TokenHash = nil
	u.TokenCreatedUTC = nil
}

func digestOf(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
