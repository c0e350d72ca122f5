package dto

// MigrateDTO names the two tenants involved in a dump/restore migration
type MigrateDTO struct {
	SourceID      string `json:"source_id" validate:"required"`
	DestinationID string `json:"destination_id" validate:"required"`
}

// MigrationResponseDTO reports the outcome of a migration
type MigrationResponseDTO struct {
	Status string `json:"status"`
}
