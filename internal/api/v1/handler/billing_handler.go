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

type BillingHandler struct {
	billingService  service.BillingService
	paystackService service.PaystackService
	validate        *validator.Validate
}

func NewBillingHandler(billingService service.BillingService, paystackService service.PaystackService, v *validator.Validate) *BillingHandler {
	return &BillingHandler{
		billingService:  billingService,
		paystackService: paystackService,
		validate:        v,
	}
}

// RegisterRoutes mounts v1 billing routes
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/billing/invoices", authMw(http.HandlerFunc(h.listInvoices)))
	mux.Handle("/billing/invoices/", authMw(http.HandlerFunc(h.getInvoice)))
	mux.Handle("/billing/invoices/pay", authMw(http.HandlerFunc(h.payInvoice)))
	mux.Handle("/billing/subscriptions", authMw(http.HandlerFunc(h.getSubscription)))
	mux.Handle("/billing/subscriptions/extend", authMw(http.HandlerFunc(h.extendSubscription)))
	mux.Handle("/billing/payments/verify", authMw(http.HandlerFunc(h.verifyPayment)))
}

func (h *BillingHandler) listInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	invoices, err := h.billingService.ListInvoices(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]dto.InvoiceResponseDTO, 0, len(invoices))
	for i := range invoices {
		resp = append(resp, invoiceToDTO(&invoices[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *BillingHandler) getInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	invoiceID := strings.TrimPrefix(r.URL.Path, "/billing/invoices/")
	if invoiceID == "" || invoiceID == "pay" || strings.Contains(invoiceID, "/") {
		http.NotFound(w, r)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	inv, err := h.billingService.GetInvoice(r.Context(), userID, invoiceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoiceToDTO(inv))
}

func (h *BillingHandler) payInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.PayInvoiceDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	authURL, payment, err := h.paystackService.InitializeInvoicePayment(r.Context(), userID, req.InvoiceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := dto.PaymentInitResponseDTO{
		AuthorizationURL: authURL,
		Reference:        payment.Reference,
		Amount:           payment.Amount,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// getSubscription looks up the subscription backing a tenant by its sub_for
// key (database name or storage instance ID).
func (h *BillingHandler) getSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}
	subFor := r.URL.Query().Get("sub_for")
	if subFor == "" {
		http.Error(w, "missing sub_for", http.StatusBadRequest)
		return
	}

	sub, err := h.billingService.GetSubscriptionForTenant(r.Context(), userID, subFor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := dto.SubscriptionResponseDTO{
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		SubFor:         sub.SubFor,
		StartDate:      sub.StartDate,
		EndDate:        sub.EndDate,
		BillingType:    string(sub.BillingType),
		Status:         string(sub.Status),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *BillingHandler) extendSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.ExtendSubscriptionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	subscriptionID := req.SubscriptionID
	if subscriptionID == "" {
		// No subscription covers this key yet, so one is opened (with no
		// coverage) for the verified payment to extend.
		sub, err := h.billingService.EnsurePrepaidSubscription(r.Context(), userID, req.Plan, req.SubFor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		subscriptionID = sub.ID
	}

	authURL, payment, err := h.paystackService.InitializeExtension(r.Context(), userID, subscriptionID, req.Months)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := dto.PaymentInitResponseDTO{
		AuthorizationURL: authURL,
		Reference:        payment.Reference,
		Amount:           payment.Amount,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *BillingHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	payment, err := h.paystackService.VerifyPayment(r.Context(), userID, reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := dto.PaymentResponseDTO{
		Reference:      payment.Reference,
		InvoiceID:      payment.InvoiceID,
		SubscriptionID: payment.SubscriptionID,
		Amount:         payment.Amount,
		Status:         string(payment.Status),
		CreatedAt:      payment.CreatedAt,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func invoiceToDTO(inv *model.Invoice) dto.InvoiceResponseDTO {
	return dto.InvoiceResponseDTO{
		InvoiceID:      inv.ID,
		SubscriptionID: inv.SubscriptionID,
		Amount:         inv.Amount,
		Status:         string(inv.Status),
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		DueDate:        inv.DueDate,
		CreatedAt:      inv.CreatedAt,
	}
}
