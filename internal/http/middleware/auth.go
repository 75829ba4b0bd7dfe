package middleware

import (
	"net/http"
	"strings"

	"confidential_rps/internal/http/handlers"
	"confidential_rps/internal/logger"
	"confidential_rps/internal/service"

	"github.com/gin-gonic/gin"
)

// JWT requires "Authorization: Bearer <token>" and stores the caller's
// address under handlers.PrincipalKey.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required", "code": "unauthorized"})
			return
		}

		principal, err := service.ParseJWT(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
			return
		}

		c.Set(handlers.PrincipalKey, principal)
		ctx := logger.NewContext(c.Request.Context(), logger.With("principal", principal.Hex()))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
