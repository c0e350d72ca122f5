package service

import (
	"context"
	"errors"
	"testing"

	"shardz/internal/model"
)

func TestRegisterAndLogin(t *testing.T) {
	repo := &fakeUserRepo{users: make(map[string]*model.User)}
	svc := NewUserService(repo)

	u, err := svc.Register(context.Background(), "alice@example.com", "alice", "s3cret-pass")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if u.PasswordHash == "" || u.PasswordHash == "s3cret-pass" {
		t.Fatal("password must be stored hashed")
	}
	if u.DatabaseLimit != defaultDatabaseLimit {
		t.Fatalf("database limit %d, want %d", u.DatabaseLimit, defaultDatabaseLimit)
	}

	if _, err := svc.Register(context.Background(), "alice@example.com", "alice2", "other"); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("expected ErrEmailAlreadyRegistered, got %v", err)
	}

	got, err := svc.Login(context.Background(), "alice@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("login returned user %s, want %s", got.ID, u.ID)
	}

	if _, err := svc.Login(context.Background(), "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginRejectsOAuthOnlyAccount(t *testing.T) {
	repo := &fakeUserRepo{users: make(map[string]*model.User)}
	svc := NewUserService(repo)

	if _, err := svc.OAuthLogin(context.Background(), "github", "gh-123", "bob@example.com", "bob"); err != nil {
		t.Fatalf("OAuthLogin returned error: %v", err)
	}
	if _, err := svc.Login(context.Background(), "bob@example.com", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestOAuthLoginIsIdempotent(t *testing.T) {
	repo := &fakeUserRepo{users: make(map[string]*model.User)}
	svc := NewUserService(repo)

	first, err := svc.OAuthLogin(context.Background(), "github", "gh-123", "bob@example.com", "bob")
	if err != nil {
		t.Fatalf("first OAuthLogin returned error: %v", err)
	}
	second, err := svc.OAuthLogin(context.Background(), "github", "gh-123", "bob@example.com", "bob")
	if err != nil {
		t.Fatalf("second OAuthLogin returned error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeat login created a new account: %s vs %s", first.ID, second.ID)
	}
}
