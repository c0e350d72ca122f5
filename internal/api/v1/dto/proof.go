package dto

import "time"

// ProofResponseDTO is returned in API responses
type ProofResponseDTO struct {
	ProofID        string    `json:"proof_id"`
	InvoiceID      *string   `json:"invoice_id,omitempty"`
	SubscriptionID *string   `json:"subscription_id,omitempty"`
	TxHash         string    `json:"tx_hash"`
	ScreenshotURL  string    `json:"screenshot_url"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// ProofReviewDTO is used for admin review decisions
type ProofReviewDTO struct {
	Approve bool `json:"approve"`
}
