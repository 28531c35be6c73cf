package projects

import (
	"testing"
	"time"
)

func newProject(id, owner string) *Project {
	now := time.Now()
	return &Project{ID: id, Name: id, Owner: owner, CreatedAt: now, UpdatedAt: now}
}

func TestRegistryCRUD(t *testing.T) {
	reg := NewProjectRegistry()

	reg.Set(newProject("p1", "alice"))
	if reg.Get("p1") == nil {
		t.Fatalf("project p1 not found after Set")
	}
	if got := len(reg.List()); got != 1 {
		t.Errorf("expected 1 project, got %d", got)
	}

	if p := reg.Rename("p1", "renamed"); p == nil || p.Name != "renamed" {
		t.Errorf("Rename did not apply")
	}
	if reg.Rename("missing", "x") != nil {
		t.Errorf("Rename on missing project should return nil")
	}

	if reg.Delete("p1") == nil {
		t.Errorf("Delete should return the removed project")
	}
	if reg.Get("p1") != nil {
		t.Errorf("project p1 still present after Delete")
	}
}

func TestMembership(t *testing.T) {
	reg := NewProjectRegistry()
	reg.Set(newProject("p1", "alice"))

	if !reg.IsMember("p1", "alice") {
		t.Errorf("owner should be a member")
	}
	if reg.IsMember("p1", "bob") {
		t.Errorf("bob is not a member yet")
	}

	reg.AddMember("p1", "bob")
	reg.AddMember("p1", "bob") // idempotent
	if !reg.IsMember("p1", "bob") {
		t.Errorf("bob should be a member after AddMember")
	}
	if got := len(reg.Get("p1").Members); got != 1 {
		t.Errorf("expected 1 member entry, got %d", got)
	}

	reg.RemoveMember("p1", "bob")
	if reg.IsMember("p1", "bob") {
		t.Errorf("bob should no longer be a member")
	}

	if reg.IsMember("missing", "alice") {
		t.Errorf("membership on missing project should be false")
	}
}

func TestIsValidProjectName(t *testing.T) {
	valid := []string{"Alpha", "sprint-7", "team_board 2"}
	for _, name := range valid {
		if !IsValidProjectName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	invalid := []string{"", "a/b", "x;rm", string(make([]byte, 101))}
	for _, name := range invalid {
		if IsValidProjectName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
