package api

import (
	"github.com/gin-gonic/gin"
)

// currentUser returns the username the auth middleware stored in the
// request context, or "system" for unauthenticated internal calls.
func currentUser(c *gin.Context) string {
	if user, exists := c.Get("user"); exists {
		if username, ok := user.(string); ok && username != "" {
			return username
		}
	}
	return "system"
}

func currentScopes(c *gin.Context) []string {
	if v, exists := c.Get("scopes"); exists {
		if scopes, ok := v.([]string); ok {
			return scopes
		}
	}
	return nil
}

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

func notFoundResponse(c *gin.Context, resource string) {
	c.JSON(404, gin.H{
		"error": resource + " not found",
	})
}

func badRequestResponse(c *gin.Context, message string) {
	c.JSON(400, gin.H{
		"error": message,
	})
}

func forbiddenResponse(c *gin.Context, message string) {
	if message == "" {
		message = "forbidden"
	}
	c.JSON(403, gin.H{
		"error": message,
	})
}

func internalErrorResponse(c *gin.Context, err error) {
	c.JSON(500, gin.H{
		"error":  "internal server error",
		"detail": err.Error(),
	})
}
