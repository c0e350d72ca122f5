package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"shardz/internal/api/v1/dto"
	"shardz/internal/middleware"
	"shardz/internal/service"
)

type MigrationHandler struct {
	migrationService service.MigrationService
	validate         *validator.Validate
}

func NewMigrationHandler(migrationService service.MigrationService, v *validator.Validate) *MigrationHandler {
	return &MigrationHandler{migrationService: migrationService, validate: v}
}

// RegisterRoutes mounts v1 migration routes
func (h *MigrationHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/databases/migrate", authMw(http.HandlerFunc(h.migrate)))
}

func (h *MigrationHandler) migrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.MigrateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.migrationService.MigrateTenant(r.Context(), userID, req.SourceID, req.DestinationID)
	if err != nil {
		// A rollback or manual-intervention outcome still carries an error;
		// the status code tells the caller which it was.
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.MigrationResponseDTO{Status: string(status)})
}
