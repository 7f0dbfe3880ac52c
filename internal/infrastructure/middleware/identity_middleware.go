package middleware

import (
	"net/http"
	"strings"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	apperrors "meetsignal/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ContextKeyToken    = "token"
	ContextKeyIdentity = "identity"
)

// TokenFromRequest reads the connect-time token from ?token= or an Authorization bearer header.
// Browsers cannot set headers on a websocket handshake, so the query parameter wins.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// IdentityMiddleware resolves the connect-time token before the websocket upgrade.
// A token the resolver rejects ends the request with 401.
func IdentityMiddleware(resolver ports.IdentityResolver, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c.Request)
		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			logger.Infow("rejected connection token",
				"remote_addr", c.ClientIP(),
				"error", err,
			)
			appErr := apperrors.NewUnauthorizedError(err.Error())
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}

		c.Set(ContextKeyToken, token)
		c.Set(ContextKeyIdentity, identity)
		c.Next()
	}
}

// IdentityFromContext returns what IdentityMiddleware stored; zero values when it did not run.
func IdentityFromContext(c *gin.Context) (domain.Identity, string) {
	identity, _ := c.Get(ContextKeyIdentity)
	id, _ := identity.(domain.Identity)
	return id, c.GetString(ContextKeyToken)
}
