package model

import "time"

// APIKey stores only the SHA-256 hash of a key; the raw secret is shown to the
// user exactly once at creation time.
type APIKey struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	KeyHash   string    `db:"key_hash" json:"-"`
	Revoked   bool      `db:"revoked" json:"revoked"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
