package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("TALENTGATE_AUTH_SECRET", "test-secret-do-not-use")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("admin-1", []string{"Admin", "admin", " viewer "}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "admin-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" || claims.Roles[1] != "viewer" {
		t.Fatalf("expected deduplicated lower-cased roles, got %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setSecret(t)

	if _, err := GenerateToken("", []string{"admin"}, time.Minute); err == nil {
		t.Fatal("expected error for empty admin id")
	}
	if _, err := GenerateToken("admin-1", nil, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestGenerateTokenMissingSecret(t *testing.T) {
	t.Setenv("TALENTGATE_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("admin-1", []string{"admin"}, time.Minute); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected missing-secret error, got %v", err)
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	setSecret(t)

	for _, token := range []string{"", "   ", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseAndValidateRejectsExpired(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("admin-1", []string{"admin"}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseAndValidateRejectsWrongSecret(t *testing.T) {
	setSecret(t)
	token, err := GenerateToken("admin-1", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("TALENTGATE_AUTH_SECRET", "a-different-secret")
	ResetSecretForTests()

	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithAdmin(context.Background(), "admin-1", []string{"Admin", "viewer", "admin"})

	id, ok := AdminIDFromContext(ctx)
	if !ok || id != "admin-1" {
		t.Fatalf("expected admin-1, got %q ok=%v", id, ok)
	}
	roles := RolesFromContext(ctx)
	if len(roles) != 2 {
		t.Fatalf("expected two roles, got %v", roles)
	}
	if !HasRole(ctx, "ADMIN") || !HasRole(ctx, "viewer") {
		t.Fatal("expected case-insensitive role checks to pass")
	}
	if HasRole(ctx, "root") {
		t.Fatal("unexpected role")
	}

	if _, ok := AdminIDFromContext(context.Background()); ok {
		t.Fatal("expected no admin on empty context")
	}
	if HasRole(context.Background(), "admin") {
		t.Fatal("expected no roles on empty context")
	}
}
