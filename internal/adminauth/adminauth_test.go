package adminauth

import (
	"testing"
	"time"
)

func TestIssueAndParseRoundTrips(t *testing.T) {
	now := time.Now()
	tok, err := Issue("secret", RoleAdmin, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := Parse("secret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != RoleAdmin {
		t.Fatalf("expected role admin, got %q", claims.Role)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, err := Issue("secret-a", RoleAdmin, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse("secret-b", tok); err == nil {
		t.Fatalf("expected parsing with the wrong secret to fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tok, err := Issue("secret", RoleAdmin, time.Minute, past)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := Parse("secret", tok); err == nil {
		t.Fatalf("expected an expired token to fail parsing")
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	if _, err := Issue("", RoleAdmin, time.Hour, time.Now()); err == nil {
		t.Fatalf("expected an error when signing secret is empty")
	}
}

func TestParseRequiresSecret(t *testing.T) {
	if _, err := Parse("", "whatever"); err == nil {
		t.Fatalf("expected an error when verification secret is empty")
	}
}
