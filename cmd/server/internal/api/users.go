package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workdeck/workdeck/cmd/server/internal/users"
)

type userView struct {
	Username  string    `json:"username"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewOf(u *users.User) userView {
	return userView{
		Username:  u.Username,
		Scopes:    u.Scopes,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HandleListUsers GET /api/v1/users
// Required scope: users.ScopeUserManage
func HandleListUsers(userManager *users.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		list := userManager.ListUsers()
		out := make([]userView, 0, len(list))
		for _, u := range list {
			out = append(out, viewOf(u))
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

// HandleGetUser GET /api/v1/users/:username
// Required scope: users.ScopeUserManage
func HandleGetUser(userManager *users.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := userManager.GetUser(c.Param("username"))
		if !ok {
			notFoundResponse(c, "user")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": viewOf(u)})
	}
}

// HandleCreateUser POST /api/v1/users
// Required scope: users.ScopeUserManage
func HandleCreateUser(userManager *users.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string   `json:"username"`
			Password string   `json:"password"`
			Scopes   []string `json:"scopes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}
		if req.Username == "" {
			badRequestResponse(c, "username is required")
			return
		}
		if req.Password == "" {
			badRequestResponse(c, "password is required")
			return
		}

		u, err := userManager.CreateUser(req.Username, req.Password, req.Scopes)
		if err != nil {
			if errors.Is(err, users.ErrUserExists) {
				errorResponse(c, http.StatusConflict, "user already exists")
				return
			}
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": viewOf(u)})
	}
}

// HandleUpdateUser PUT /api/v1/users/:username
// Replaces a user's scopes.
// Required scope: users.ScopeUserManage
func HandleUpdateUser(userManager *users.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Scopes []string `json:"scopes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}

		u, err := userManager.UpdateUser(c.Param("username"), req.Scopes)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				notFoundResponse(c, "user")
				return
			}
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": viewOf(u)})
	}
}

// HandleDeleteUser DELETE /api/v1/users/:username
// Required scope: users.ScopeUserManage
func HandleDeleteUser(userManager *users.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")
		if username == currentUser(c) {
			badRequestResponse(c, "cannot delete the current user")
			return
		}
		if err := userManager.DeleteUser(username); err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				notFoundResponse(c, "user")
				return
			}
			internalErrorResponse(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// HandleChangePassword POST /api/v1/me/password
// Lets the authenticated user rotate their own password.
func HandleChangePassword(userManager *users.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}
		if req.NewPassword == "" {
			badRequestResponse(c, "new_password is required")
			return
		}

		err := userManager.ChangePassword(currentUser(c), req.OldPassword, req.NewPassword)
		if err != nil {
			if errors.Is(err, users.ErrInvalidCredentials) {
				errorResponse(c, http.StatusUnauthorized, "wrong password")
				return
			}
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
	}
}
