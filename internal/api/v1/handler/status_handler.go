package handler

import (
	"encoding/json"
	"net/http"

	"shardz/internal/api/v1/dto"
	"shardz/internal/middleware"
	"shardz/internal/service"
)

type StatusHandler struct {
	tenantService  service.TenantService
	storageService service.StorageService
	billingService service.BillingService
}

func NewStatusHandler(tenantService service.TenantService, storageService service.StorageService, billingService service.BillingService) *StatusHandler {
	return &StatusHandler{
		tenantService:  tenantService,
		storageService: storageService,
		billingService: billingService,
	}
}

// RegisterRoutes mounts v1 status routes
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/status/counts", authMw(http.HandlerFunc(h.getCounts)))
}

// getCounts aggregates the user's footprint for the dashboard landing page.
func (h *StatusHandler) getCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
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
	objects, err := h.storageService.CountObjects(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	unpaid, err := h.billingService.CountUnpaidInvoices(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := dto.CountsResponseDTO{
		Databases:      len(tenants),
		StorageObjects: objects,
		UnpaidInvoices: unpaid,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
