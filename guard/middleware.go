package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/entity"
)

// principalKey is the gin context key the principal source stores the
// current principal under.
const principalKey = "auth.principal"

// SetPrincipal stores the current principal in the request context. Called
// by the principal source middleware (e.g. jwtauth) before any guard runs.
func SetPrincipal(c *gin.Context, p entity.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the current principal, or the anonymous sentinel
// when no principal source ran.
func PrincipalFrom(c *gin.Context) entity.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return entity.Anonymous
	}
	p, ok := v.(entity.Principal)
	if !ok || p == nil {
		return entity.Anonymous
	}
	return p
}

// CurrentUser returns the authenticated *entity.User behind the principal,
// or nil for anonymous requests.
func CurrentUser(c *gin.Context) *entity.User {
	u, _ := PrincipalFrom(c).(*entity.User)
	return u
}

// Handler wraps a single operation: the guard decides, then h runs only on
// Allowed. The wrapped handler needs no knowledge of authentication.
func (g *Guard) Handler(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.enforce(c) {
			return
		}
		h(c)
	}
}

// Middleware guards every route it is attached to, typically via
// router.Group(...).Use(...). Routes exempted with Exempt pass through so a
// guard registered nearer to the route can take over (nearest wins).
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.exempt[c.FullPath()]; ok {
			c.Next()
			return
		}
		if !g.enforce(c) {
			return
		}
		c.Next()
	}
}

// Apply attaches the guard to a whole route group.
func (g *Guard) Apply(rg *gin.RouterGroup) {
	rg.Use(g.Middleware())
}

// Exempt excludes full route paths (as reported by gin's FullPath, e.g.
// "/admin/health") from group-level enforcement. The exempted route is
// expected to carry its own Handler-wrapped guard when it still needs one.
func (g *Guard) Exempt(paths ...string) *Guard {
	for _, p := range paths {
		g.exempt[p] = struct{}{}
	}
	return g
}

// enforce runs the decision for the request and renders the failure
// response when denied. Returns true when the request may proceed.
func (g *Guard) enforce(c *gin.Context) bool {
	p := PrincipalFrom(c)
	switch g.Decide(p) {
	case Allowed:
		return true
	case AuthenticationFailed:
		g.logger.Warn("request rejected: not authenticated",
			zap.String("path", c.FullPath()))
		if g.onAuthnFail != nil {
			g.onAuthnFail(c)
			c.Abort()
			return false
		}
		if g.loginURL != "" {
			c.Redirect(http.StatusFound, g.loginURL)
			c.Abort()
			return false
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return false
	default: // AuthorizationFailed
		g.logger.Warn("request rejected: insufficient permissions",
			zap.String("path", c.FullPath()))
		if g.onAuthzFail != nil {
			g.onAuthzFail(c)
			c.Abort()
			return false
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
}
