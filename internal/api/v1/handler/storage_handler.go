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

// maxUploadBytes bounds a single multipart upload request body.
const maxUploadBytes = 256 << 20

type StorageHandler struct {
	storageService service.StorageService
	validate       *validator.Validate
}

func NewStorageHandler(storageService service.StorageService, v *validator.Validate) *StorageHandler {
	return &StorageHandler{storageService: storageService, validate: v}
}

// RegisterRoutes mounts v1 storage routes
func (h *StorageHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/storage", authMw(http.HandlerFunc(h.handleInstance)))
	mux.Handle("/storage/objects", authMw(http.HandlerFunc(h.handleObjects)))
	mux.Handle("/storage/objects/", authMw(http.HandlerFunc(h.deleteObject)))
	mux.Handle("/storage/files/", authMw(http.HandlerFunc(h.serveFile)))
}

func (h *StorageHandler) handleInstance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req dto.StorageCreateDTO
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.validate.Struct(&req); err != nil {
			http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
			return
		}
		inst, err := h.storageService.CreateInstance(r.Context(), userID, req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(storageToDTO(inst))

	case http.MethodGet:
		inst, err := h.storageService.GetInstance(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(storageToDTO(inst))

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StorageHandler) handleObjects(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.uploadObject(w, r, userID)
	case http.MethodGet:
		objects, err := h.storageService.ListObjects(r.Context(), userID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]dto.ObjectResponseDTO, 0, len(objects))
		for i := range objects {
			resp = append(resp, objectToDTO(&objects[i]))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StorageHandler) uploadObject(w http.ResponseWriter, r *http.Request, userID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	obj, err := h.storageService.Upload(r.Context(), userID, header.Filename,
		header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(objectToDTO(obj))
}

func (h *StorageHandler) deleteObject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}
	objectID := strings.TrimPrefix(r.URL.Path, "/storage/objects/")
	if objectID == "" || strings.Contains(objectID, "/") {
		http.NotFound(w, r)
		return
	}

	if err := h.storageService.DeleteObject(r.Context(), userID, objectID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StorageHandler) serveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/storage/files/")
	if filename == "" || strings.Contains(filename, "/") {
		http.NotFound(w, r)
		return
	}

	obj, path, err := h.storageService.Open(r.Context(), userID, filename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if obj.MimeType != "" {
		w.Header().Set("Content-Type", obj.MimeType)
	}
	http.ServeFile(w, r, path)
}

func storageToDTO(inst *model.StorageInstance) dto.StorageResponseDTO {
	return dto.StorageResponseDTO{
		StorageID: inst.ID,
		Name:      inst.Name,
		Quota:     inst.Quota,
		UsedSpace: inst.UsedSpace,
		CreatedAt: inst.CreatedAt,
	}
}

func objectToDTO(o *model.StoredObject) dto.ObjectResponseDTO {
	return dto.ObjectResponseDTO{
		ObjectID:  o.ID,
		Filename:  o.Filename,
		URL:       o.URL,
		Size:      o.Size,
		MimeType:  o.MimeType,
		CreatedAt: o.CreatedAt,
	}
}
