package model

import "time"

// User represents an account on the control plane.
type User struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Username      string    `db:"username" json:"username"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	OAuthProvider *string   `db:"oauth_provider" json:"oauth_provider,omitempty"`
	OAuthSubject  *string   `db:"oauth_subject" json:"-"`
	DatabaseLimit int       `db:"database_limit" json:"database_limit"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
