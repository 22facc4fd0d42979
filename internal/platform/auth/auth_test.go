package auth

import (
	"net/http/httptest"
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	if !HasAtLeast([]string{"trainee"}, RoleTrainee) {
		t.Fatalf("trainee should satisfy trainee")
	}
	if HasAtLeast([]string{"trainee"}, RoleAdmin) {
		t.Fatalf("trainee should not satisfy admin")
	}
	if !HasAtLeast([]string{"admin"}, RoleTrainer) {
		t.Fatalf("admin should satisfy trainer")
	}
	if HasAtLeast(nil, RoleTrainee) {
		t.Fatalf("no roles should satisfy nothing")
	}
}

func TestFromHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.test/", nil)
	req.Header.Set(HeaderUser, "u-123")
	req.Header.Set(HeaderEmail, "analyst@redroomsim.com")
	req.Header.Set(HeaderRoles, "trainee, admin")

	identity := FromHeaders(req)
	if identity.Subject != "u-123" {
		t.Fatalf("Subject=%q", identity.Subject)
	}
	if identity.Actor() != "analyst@redroomsim.com" {
		t.Fatalf("Actor()=%q", identity.Actor())
	}
	if len(identity.Roles) != 2 || identity.Roles[1] != "admin" {
		t.Fatalf("Roles=%v", identity.Roles)
	}
}

func TestFromHeadersAnonymous(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.test/", nil)
	identity := FromHeaders(req)
	if !identity.Anonymous() {
		t.Fatalf("expected anonymous identity")
	}
	if identity.Actor() != "anonymous" {
		t.Fatalf("Actor()=%q, want anonymous", identity.Actor())
	}
}
