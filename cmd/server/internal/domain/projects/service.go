package projects

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/workdeck/workdeck/cmd/server/internal/config"
)

var (
	// ProjectsRoot will be initialized from config
	ProjectsRoot      string
	ProjectsStatePath string
)

// InitPaths initializes the paths from config
func InitPaths() {
	if config.GlobalConfig != nil {
		ProjectsRoot = config.GlobalConfig.Data.ProjectsDir
		ProjectsStatePath = filepath.Join(ProjectsRoot, "server_projects.json")
	} else {
		// Fallback to relative paths
		ProjectsRoot = "projects"
		ProjectsStatePath = "projects/server_projects.json"
	}
}

// IsValidProjectName validates that the project name is safe for filesystem use
func IsValidProjectName(name string) bool {
	if len(name) == 0 || len(name) > 100 {
		return false
	}
	// Allow alphanumeric, spaces, hyphens, underscores
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == ' ' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

type persistedState struct {
	Projects []*Project `json:"projects"`
}

// SaveProjects persists the project registry to disk
func SaveProjects(reg *ProjectRegistry) error {
	InitPaths()
	if err := os.MkdirAll(ProjectsRoot, 0o755); err != nil {
		return fmt.Errorf("ensure projects root: %w", err)
	}

	state := persistedState{Projects: reg.List()}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal projects: %w", err)
	}

	tmp := ProjectsStatePath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := os.Rename(tmp, ProjectsStatePath); err != nil {
		return fmt.Errorf("rename tmp file: %w", err)
	}
	return nil
}

// LoadProjects restores the registry from disk; a missing state file is not
// an error (first run).
func LoadProjects(reg *ProjectRegistry) error {
	InitPaths()
	b, err := os.ReadFile(ProjectsStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read projects state: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("unmarshal projects state: %w", err)
	}
	for _, p := range state.Projects {
		reg.Set(p)
	}
	return nil
}
