package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/workdeck/workdeck/cmd/server/internal/domain/projects"
)

// HandleListProjects GET /api/v1/projects
// Returns the projects the caller owns or is a member of.
func HandleListProjects(reg *projects.ProjectRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		out := make([]*projects.Project, 0)
		for _, p := range reg.List() {
			if p.HasMember(user) {
				out = append(out, p)
			}
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

// HandleGetProject GET /api/v1/projects/:id
func HandleGetProject(reg *projects.ProjectRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if !p.HasMember(currentUser(c)) {
			forbiddenResponse(c, "not a project member")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": p})
	}
}

// HandleCreateProject POST /api/v1/projects
// Required scope: users.ScopeProjectWrite
func HandleCreateProject(reg *projects.ProjectRegistry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}
		if !projects.IsValidProjectName(req.Name) {
			badRequestResponse(c, "invalid project name")
			return
		}

		now := time.Now()
		p := &projects.Project{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Owner:     currentUser(c),
			Members:   []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		reg.Set(p)
		if err := projects.SaveProjects(reg); err != nil {
			logger.Error("save projects failed", "error", err)
			internalErrorResponse(c, err)
			return
		}
		logger.Info("project created", "project_id", p.ID, "name", p.Name, "owner", p.Owner)
		c.JSON(http.StatusCreated, gin.H{"data": p})
	}
}

// HandleRenameProject PUT /api/v1/projects/:id
// Required scope: users.ScopeProjectWrite
func HandleRenameProject(reg *projects.ProjectRegistry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || !projects.IsValidProjectName(req.Name) {
			badRequestResponse(c, "invalid project name")
			return
		}

		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if p.Owner != currentUser(c) {
			forbiddenResponse(c, "only the owner can rename a project")
			return
		}

		p = reg.Rename(p.ID, req.Name)
		if err := projects.SaveProjects(reg); err != nil {
			logger.Error("save projects failed", "error", err)
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": p})
	}
}

// HandleDeleteProject DELETE /api/v1/projects/:id
// Required scope: users.ScopeProjectWrite
func HandleDeleteProject(reg *projects.ProjectRegistry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if p.Owner != currentUser(c) {
			forbiddenResponse(c, "only the owner can delete a project")
			return
		}

		reg.Delete(p.ID)
		if err := projects.SaveProjects(reg); err != nil {
			logger.Error("save projects failed", "error", err)
			internalErrorResponse(c, err)
			return
		}
		logger.Info("project deleted", "project_id", p.ID, "by", currentUser(c))
		c.Status(http.StatusNoContent)
	}
}

// HandleAddMember POST /api/v1/projects/:id/members
// Required scope: users.ScopeProjectWrite
func HandleAddMember(reg *projects.ProjectRegistry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
			badRequestResponse(c, "username is required")
			return
		}

		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if p.Owner != currentUser(c) {
			forbiddenResponse(c, "only the owner can manage members")
			return
		}

		p = reg.AddMember(p.ID, req.Username)
		if err := projects.SaveProjects(reg); err != nil {
			logger.Error("save projects failed", "error", err)
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": p})
	}
}

// HandleRemoveMember DELETE /api/v1/projects/:id/members/:username
// Required scope: users.ScopeProjectWrite
func HandleRemoveMember(reg *projects.ProjectRegistry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := reg.Get(c.Param("id"))
		if p == nil {
			notFoundResponse(c, "project")
			return
		}
		if p.Owner != currentUser(c) {
			forbiddenResponse(c, "only the owner can manage members")
			return
		}

		p = reg.RemoveMember(p.ID, c.Param("username"))
		if err := projects.SaveProjects(reg); err != nil {
			logger.Error("save projects failed", "error", err)
			internalErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": p})
	}
}
