package dto

import "time"

// TenantCreateDTO is used for incoming tenant provisioning requests
type TenantCreateDTO struct {
	Kind string `json:"kind" validate:"required"`
}

// TenantResponseDTO is returned in API responses. The password appears only
// here; it is never readable again after provisioning.
type TenantResponseDTO struct {
	TenantID     string    `json:"tenant_id"`
	Kind         string    `json:"kind"`
	Username     string    `json:"username"`
	DatabaseName string    `json:"database_name"`
	Password     string    `json:"password,omitempty"`
	URI          string    `json:"uri,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
