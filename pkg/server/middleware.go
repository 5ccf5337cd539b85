package server

import (
	"github.com/gin-gonic/gin"

	"github.com/ivanvihe/jarvis-core/pkg/apperrors"
)

// authMiddleware enforces a literal equality check between the
// configured token and the request's Authorization header. No route,
// including /health, is exempt, and the check is skipped entirely when
// no token is configured (local single-user deployments with auth
// disabled).
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != token {
			apperrors.Abort(c, apperrors.NewUnauthorized("invalid or missing Authorization header"))
			return
		}
		c.Next()
	}
}
