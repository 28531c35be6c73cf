package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workdeck/workdeck/cmd/server/internal/users"
)

// HandleLogin POST /api/v1/auth/login
// Exchanges username/password for an access/refresh token pair.
func HandleLogin(userManager *users.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			badRequestResponse(c, "username and password are required")
			return
		}

		user, err := userManager.Authenticate(req.Username, req.Password)
		if err != nil {
			logger.Info("login failed", "user", req.Username, "remote", c.ClientIP())
			errorResponse(c, http.StatusUnauthorized, "invalid credentials")
			return
		}

		pair, err := userManager.GenerateTokenPair(user.Username)
		if err != nil {
			internalErrorResponse(c, err)
			return
		}

		logger.Info("login ok", "user", user.Username)
		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"username":      user.Username,
			"scopes":        user.Scopes,
		})
	}
}

// HandleRefresh POST /api/v1/auth/refresh
// Exchanges a valid refresh token for a fresh token pair. Clients call
// this after their websocket is closed with the credential-expired code.
func HandleRefresh(userManager *users.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
			badRequestResponse(c, "refresh_token is required")
			return
		}

		pair, err := userManager.RefreshTokenPair(req.RefreshToken)
		if err != nil {
			if errors.Is(err, users.ErrTokenExpired) {
				errorResponse(c, http.StatusUnauthorized, "refresh token expired")
				return
			}
			errorResponse(c, http.StatusUnauthorized, "invalid refresh token")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
		})
	}
}
