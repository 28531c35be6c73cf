package projects

import (
	"sync"
	"time"
)

// Project represents a project entity. Members are the usernames allowed to
// open the project's documents; membership gates realtime room joins.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasMember reports whether username is the owner or a member.
func (p *Project) HasMember(username string) bool {
	if p.Owner == username {
		return true
	}
	for _, m := range p.Members {
		if m == username {
			return true
		}
	}
	return false
}

// ProjectRegistry maintains a thread-safe collection of projects
type ProjectRegistry struct {
	mu sync.Mutex
	m  map[string]*Project
}

// NewProjectRegistry creates a new project registry
func NewProjectRegistry() *ProjectRegistry {
	return &ProjectRegistry{m: map[string]*Project{}}
}

// Get retrieves a project by ID
func (r *ProjectRegistry) Get(id string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id]
}

// Set stores or updates a project
func (r *ProjectRegistry) Set(p *Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ID] = p
}

// List returns all projects as a slice
func (r *ProjectRegistry) List() []*Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*Project, 0, len(r.m))
	for _, p := range r.m {
		list = append(list, p)
	}
	return list
}

// Delete removes a project by ID
func (r *ProjectRegistry) Delete(id string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.m[id]
	if p != nil {
		delete(r.m, id)
	}
	return p
}

// Rename updates a project's name
func (r *ProjectRegistry) Rename(id, name string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.m[id]
	if p == nil {
		return nil
	}
	p.Name = name
	p.UpdatedAt = time.Now()
	return p
}

// AddMember adds a username to a project's member list (idempotent)
func (r *ProjectRegistry) AddMember(id, username string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.m[id]
	if p == nil {
		return nil
	}
	for _, m := range p.Members {
		if m == username {
			return p
		}
	}
	p.Members = append(p.Members, username)
	p.UpdatedAt = time.Now()
	return p
}

// RemoveMember drops a username from a project's member list
func (r *ProjectRegistry) RemoveMember(id, username string) *Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.m[id]
	if p == nil {
		return nil
	}
	out := p.Members[:0]
	for _, m := range p.Members {
		if m != username {
			out = append(out, m)
		}
	}
	p.Members = out
	p.UpdatedAt = time.Now()
	return p
}

// IsMember reports whether username may access the project
func (r *ProjectRegistry) IsMember(id, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.m[id]
	if p == nil {
		return false
	}
	return p.HasMember(username)
}
