// Package credgen produces collision-resistant tenant credentials and
// identifiers. All randomness comes from crypto/rand; a failing entropy source
// is fatal, so generation itself has no error path.
package credgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const apiKeyPrefix = "sk_live_"

// Username derives a tenant role name from the owning user's name: sanitized
// to [a-z0-9_] so it is a legal unquoted identifier, plus a random hex suffix
// so two tenants of the same user never collide.
func Username(owner string) string {
	base := sanitizeIdentifier(owner)
	if base == "" {
		base = "tenant"
	}
	return base + "_" + randomHex(4)
}

// DatabaseName returns a fresh engine-level database name.
func DatabaseName() string {
	return "db_" + randomHex(6)
}

// Password returns a URL-safe random password with 24 bytes of entropy.
func Password() string {
	return base64.RawURLEncoding.EncodeToString(randomBytes(24))
}

// APIKey returns the raw secret to show the user once, and the SHA-256 hex
// digest to persist.
func APIKey() (raw, hash string) {
	raw = apiKeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes(24))
	return raw, HashAPIKey(raw)
}

// HashAPIKey returns the hex SHA-256 digest of a raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// sanitizeIdentifier lowercases and strips everything outside [a-z0-9_].
// Leading digits are prefixed so the result is valid as a bare identifier.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "u" + out
	}
	return out
}

func randomHex(n int) string {
	return hex.EncodeToString(randomBytes(n))
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("credgen: entropy source unavailable: " + err.Error())
	}
	return buf
}
