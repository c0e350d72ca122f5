package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"shardz/internal/api/v1/dto"
	"shardz/internal/middleware"
	"shardz/internal/model"
	"shardz/internal/service"
)

type TenantHandler struct {
	tenantService service.TenantService
	validate      *validator.Validate
}

func NewTenantHandler(tenantService service.TenantService, v *validator.Validate) *TenantHandler {
	return &TenantHandler{tenantService: tenantService, validate: v}
}

// RegisterRoutes mounts v1 tenant routes
func (h *TenantHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/databases", authMw(http.HandlerFunc(h.handleCollection)))
	mux.Handle("/databases/", authMw(http.HandlerFunc(h.handleItem)))
}

func (h *TenantHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTenant(w, r)
	case http.MethodGet:
		h.listTenants(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TenantHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimPrefix(r.URL.Path, "/databases/")
	if tenantID == "" || strings.Contains(tenantID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.getTenant(w, r, tenantID)
	case http.MethodDelete:
		h.deleteTenant(w, r, tenantID)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *TenantHandler) createTenant(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.TenantCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	kind := model.TenantKind(req.Kind)
	if !kind.Valid() {
		http.Error(w, "unknown database kind: "+req.Kind, http.StatusBadRequest)
		return
	}

	inst, err := h.tenantService.CreateTenant(r.Context(), userID, kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The only response that ever carries the generated password.
	resp := tenantToDTO(inst)
	resp.Password = inst.Password
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *TenantHandler) listTenants(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	tenants, err := h.tenantService.ListTenants(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]dto.TenantResponseDTO, 0, len(tenants))
	for i := range tenants {
		resp = append(resp, tenantToDTO(&tenants[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *TenantHandler) getTenant(w http.ResponseWriter, r *http.Request, tenantID string) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	inst, err := h.tenantService.GetTenant(r.Context(), userID, tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tenantToDTO(inst))
}

func (h *TenantHandler) deleteTenant(w http.ResponseWriter, r *http.Request, tenantID string) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.tenantService.DeleteTenant(r.Context(), userID, tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tenantToDTO(inst *model.DatabaseInstance) dto.TenantResponseDTO {
	return dto.TenantResponseDTO{
		TenantID:     inst.ID,
		Kind:         string(inst.Kind),
		Username:     inst.Username,
		DatabaseName: inst.DatabaseName,
		URI:          inst.URI,
		CreatedAt:    inst.CreatedAt,
	}
}
