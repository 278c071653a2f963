package middleware

import (
	"net/http"
	"strings"

	"eventsphere/internal/core/domain"
	"eventsphere/internal/core/ports"
	apperrors "eventsphere/pkg/errors"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// BearerToken returns the token from a Bearer Authorization header, falling
// back to the queryName query parameter. Browsers cannot set headers on a
// WebSocket upgrade, hence the fallback. A non-Bearer Authorization header
// without a query token is returned as is, so it fails verification instead
// of counting as missing.
func BearerToken(r *http.Request, queryName string) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if queryName != "" {
		if token := r.URL.Query().Get(queryName); token != "" {
			return token
		}
	}
	return header
}

// AuthMiddleware authenticates the request before anything else runs and
// stores the identity in the gin context. Rejections are a 401 with the
// error signal as body.
func AuthMiddleware(auth ports.Authenticator, queryName string, metrics ports.Metrics) gin.HandlerFunc {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return func(c *gin.Context) {
		identity, err := auth.Authenticate(c.Request.Context(), domain.Handshake{
			Token:      BearerToken(c.Request, queryName),
			RemoteAddr: c.ClientIP(),
		})
		if err != nil {
			sig := apperrors.From(err)
			metrics.HandshakeRejected(string(sig.Code))
			c.AbortWithStatusJSON(sig.HTTPStatus(), sig)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole rejects authenticated callers without one of roles.
// It must run after AuthMiddleware.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			sig := apperrors.AuthRequired()
			c.AbortWithStatusJSON(sig.HTTPStatus(), sig)
			return
		}
		for _, role := range roles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		sig := apperrors.Forbidden("insufficient role")
		c.AbortWithStatusJSON(sig.HTTPStatus(), sig)
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
