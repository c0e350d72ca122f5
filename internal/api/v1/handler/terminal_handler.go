package handler

import (
	"net/http"
	"strings"

	"shardz/internal/middleware"
	"shardz/internal/service"
	"shardz/internal/terminal"
)

type TerminalHandler struct {
	tenantService service.TenantService
	manager       *terminal.Manager
}

func NewTerminalHandler(tenantService service.TenantService, manager *terminal.Manager) *TerminalHandler {
	return &TerminalHandler{tenantService: tenantService, manager: manager}
}

// RegisterRoutes mounts the v1 terminal websocket route
func (h *TerminalHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/databases/terminal/", authMw(http.HandlerFunc(h.openTerminal)))
}

// openTerminal checks ownership, then hands the connection to the session
// manager which upgrades it and runs the shell.
func (h *TerminalHandler) openTerminal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}
	tenantID := strings.TrimPrefix(r.URL.Path, "/databases/terminal/")
	if tenantID == "" || strings.Contains(tenantID, "/") {
		http.NotFound(w, r)
		return
	}

	inst, err := h.tenantService.GetTenant(r.Context(), userID, tenantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.manager.HandleSession(w, r, inst)
}
