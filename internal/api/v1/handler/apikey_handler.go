package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"shardz/internal/api/v1/dto"
	"shardz/internal/middleware"
	"shardz/internal/service"
)

type APIKeyHandler struct {
	apiKeyService service.APIKeyService
}

func NewAPIKeyHandler(apiKeyService service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService: apiKeyService}
}

// RegisterRoutes mounts v1 API key routes
func (h *APIKeyHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/keys", authMw(http.HandlerFunc(h.handleCollection)))
	mux.Handle("/keys/", authMw(http.HandlerFunc(h.revokeKey)))
}

func (h *APIKeyHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		raw, key, err := h.apiKeyService.Issue(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := dto.APIKeyCreatedDTO{KeyID: key.ID, Key: raw, CreatedAt: key.CreatedAt}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)

	case http.MethodGet:
		keys, err := h.apiKeyService.List(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]dto.APIKeyResponseDTO, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, dto.APIKeyResponseDTO{KeyID: k.ID, Revoked: k.Revoked, CreatedAt: k.CreatedAt})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *APIKeyHandler) revokeKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}
	keyID := strings.TrimPrefix(r.URL.Path, "/keys/")
	if keyID == "" || strings.Contains(keyID, "/") {
		http.NotFound(w, r)
		return
	}

	if err := h.apiKeyService.Revoke(r.Context(), userID, keyID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
