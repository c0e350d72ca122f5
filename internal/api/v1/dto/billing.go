package dto

import "time"

// SubscriptionResponseDTO is returned in API responses
type SubscriptionResponseDTO struct {
	SubscriptionID string     `json:"subscription_id"`
	PlanID         string     `json:"plan_id"`
	SubFor         string     `json:"sub_for"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	BillingType    string     `json:"billing_type"`
	Status         string     `json:"status"`
}

// InvoiceResponseDTO is returned in API responses
type InvoiceResponseDTO struct {
	InvoiceID      string    `json:"invoice_id"`
	SubscriptionID string    `json:"subscription_id"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	DueDate        time.Time `json:"due_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExtendSubscriptionDTO is used for prepaid extension requests. Callers name
// either an existing subscription or, for a tenant without one, the plan and
// sub_for key to subscribe under.
type ExtendSubscriptionDTO struct {
	SubscriptionID string `json:"subscription_id" validate:"required_without=SubFor"`
	Plan           string `json:"plan" validate:"required_with=SubFor"`
	SubFor         string `json:"sub_for" validate:"required_without=SubscriptionID"`
	Months         int    `json:"months" validate:"required,min=1,max=24"`
}

// PayInvoiceDTO is used to start a gateway checkout for an invoice
type PayInvoiceDTO struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
}

// PaymentInitResponseDTO carries the gateway checkout handoff
type PaymentInitResponseDTO struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	Amount           int64  `json:"amount"`
}

// PaymentResponseDTO is returned after verification
type PaymentResponseDTO struct {
	Reference      string    `json:"reference"`
	InvoiceID      *string   `json:"invoice_id,omitempty"`
	SubscriptionID *string   `json:"subscription_id,omitempty"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
