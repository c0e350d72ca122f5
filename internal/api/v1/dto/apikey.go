package dto

import "time"

// APIKeyCreatedDTO carries the one-time raw key
type APIKeyCreatedDTO struct {
	KeyID     string    `json:"key_id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKeyResponseDTO is returned when listing keys; the key itself is gone
type APIKeyResponseDTO struct {
	KeyID     string    `json:"key_id"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}
