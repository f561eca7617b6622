package org

import "testing"

func TestValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"acme", true},
		{"cache-1", true},
		{"a", true},
		{"a1-b2-c3", true},
		{"", false},
		{"Acme", false},
		{"-leading", false},
		{"trailing-", false},
		{"under_score", false},
		{"spa ce", false},
		{"dot.ted", false},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := ValidSlug(tt.slug); got != tt.want {
				t.Errorf("ValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}

func TestCanRemoveMember(t *testing.T) {
	tests := []struct {
		name       string
		callerRole string
		targetRole string
		self       bool
		want       bool
	}{
		{"owner removes owner", RoleOwner, RoleOwner, false, true},
		{"owner removes admin", RoleOwner, RoleAdmin, false, true},
		{"owner removes member", RoleOwner, RoleMember, false, true},
		{"admin removes member", RoleAdmin, RoleMember, false, true},
		{"admin removes admin", RoleAdmin, RoleAdmin, false, false},
		{"admin removes owner", RoleAdmin, RoleOwner, false, false},
		{"member removes member", RoleMember, RoleMember, false, false},
		{"member leaves", RoleMember, RoleMember, true, true},
		{"owner leaves", RoleOwner, RoleOwner, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canRemoveMember(tt.callerRole, tt.targetRole, tt.self); got != tt.want {
				t.Errorf("canRemoveMember(%s, %s, %v) = %v, want %v",
					tt.callerRole, tt.targetRole, tt.self, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []string{RoleOwner, RoleAdmin, RoleMember} {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("superuser") {
		t.Error(`IsValidRole("superuser") = true`)
	}
}
