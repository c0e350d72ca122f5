package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"shardz/internal/api/v1/dto"
	"shardz/internal/middleware"
	"shardz/internal/model"
	"shardz/internal/service"
)

type ProofHandler struct {
	proofService service.ProofService
}

func NewProofHandler(proofService service.ProofService) *ProofHandler {
	return &ProofHandler{proofService: proofService}
}

// RegisterRoutes mounts v1 payment proof routes. Review and the pending list
// sit behind the admin middleware.
func (h *ProofHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("/billing/proofs", authMw(http.HandlerFunc(h.submitProof)))
	mux.Handle("/billing/proofs/pending", adminMw(http.HandlerFunc(h.listPending)))
	mux.Handle("/billing/proofs/", adminMw(http.HandlerFunc(h.reviewProof)))
}

func (h *ProofHandler) submitProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		http.Error(w, "Invalid multipart payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	var invoiceID, subscriptionID *string
	if v := r.FormValue("invoice_id"); v != "" {
		invoiceID = &v
	}
	if v := r.FormValue("subscription_id"); v != "" {
		subscriptionID = &v
	}
	txHash := r.FormValue("tx_hash")

	file, header, err := r.FormFile("screenshot")
	if err != nil {
		http.Error(w, "missing screenshot field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	proof, err := h.proofService.Submit(r.Context(), userID, invoiceID, subscriptionID, txHash, header.Filename, file)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(proofToDTO(proof))
}

func (h *ProofHandler) listPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	proofs, err := h.proofService.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]dto.ProofResponseDTO, 0, len(proofs))
	for i := range proofs {
		resp = append(resp, proofToDTO(&proofs[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ProofHandler) reviewProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	proofID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/billing/proofs/"), "/review")
	if proofID == "" || proofID == "pending" || strings.Contains(proofID, "/") {
		http.NotFound(w, r)
		return
	}

	var req dto.ProofReviewDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.proofService.Review(r.Context(), proofID, req.Approve); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func proofToDTO(p *model.PaymentProof) dto.ProofResponseDTO {
	return dto.ProofResponseDTO{
		ProofID:        p.ID,
		InvoiceID:      p.InvoiceID,
		SubscriptionID: p.SubscriptionID,
		TxHash:         p.TxHash,
		ScreenshotURL:  p.ScreenshotURL,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
	}
}
