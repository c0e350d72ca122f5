package util

import (
	"strings"
	"testing"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := MintJWT("u1", "alice@example.com", "test-secret")
	if err != nil {
		t.Fatalf("MintJWT returned error: %v", err)
	}

	claims, err := ValidateJWT(token, "test-secret")
	if err != nil {
		t.Fatalf("ValidateJWT returned error: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("user id %q, want u1", claims.UserID)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("email %q, want alice@example.com", claims.Email)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject %q, want u1", claims.Subject)
	}
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	token, err := MintJWT("u1", "alice@example.com", "secret-a")
	if err != nil {
		t.Fatalf("MintJWT returned error: %v", err)
	}
	if _, err := ValidateJWT(token, "secret-b"); err == nil {
		t.Fatal("expected validation to fail with the wrong secret")
	}
}

func TestValidateJWTRejectsGarbage(t *testing.T) {
	if _, err := ValidateJWT("not.a.token", "secret"); err == nil {
		t.Fatal("expected validation to fail")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"notes.txt", "notes.txt"},
		{"my file (1).pdf", "my_file__1_.pdf"},
		{"../../etc/passwd", "passwd"},
		{"/absolute/path.csv", "path.csv"},
		{"résumé.pdf", "r_sum_.pdf"},
		{"...", "_"},
		{"", "_"},
	}
	for _, c := range cases {
		if got := SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeFilenameNeverEscapes(t *testing.T) {
	for _, in := range []string{"../a.txt", "..\\..\\a.txt", "a/../../b.txt"} {
		got := SanitizeFilename(in)
		if strings.Contains(got, "/") || strings.Contains(got, "\\") {
			t.Errorf("SanitizeFilename(%q) = %q still holds a separator", in, got)
		}
	}
}
