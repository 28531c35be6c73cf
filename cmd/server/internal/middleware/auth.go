package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/workdeck/workdeck/cmd/server/internal/users"
)

// Auth validates the Bearer token and stores the authenticated identity in
// the request context for the handlers behind it.
func Auth(userManager *users.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := userManager.ParseAccessToken(token)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "invalid token"
			if errors.Is(err, users.ErrTokenExpired) {
				msg = "token expired"
			}
			logger.Debug("auth rejected", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}

		c.Set("user", claims.Username)
		c.Set("scopes", claims.Scopes)
		c.Next()
	}
}

// RequireScope gates a route group on one scope. Must run after Auth.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, _ := c.Get("scopes")
		list, _ := scopes.([]string)
		if !users.HasScope(list, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
