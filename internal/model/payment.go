package model

import "time"

// PaymentStatus tracks one gateway transaction attempt.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment records one gateway transaction. Reference is the gateway-supplied
// idempotency key; exactly one of InvoiceID/SubscriptionID is set depending on
// whether the payment settles an invoice or extends a subscription.
type Payment struct {
	ID             string        `db:"id" json:"id"`
	Reference      string        `db:"reference" json:"reference"`
	UserID         string        `db:"user_id" json:"user_id"`
	InvoiceID      *string       `db:"invoice_id" json:"invoice_id,omitempty"`
	SubscriptionID *string       `db:"subscription_id" json:"subscription_id,omitempty"`
	Amount         int64         `db:"amount" json:"amount"`
	Status         PaymentStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// ProofStatus is the human-review outcome of a manually submitted proof.
type ProofStatus string

const (
	ProofPending  ProofStatus = "pending"
	ProofApproved ProofStatus = "approved"
	ProofRejected ProofStatus = "rejected"
)

// PaymentProof is a manually submitted proof of an out-of-band payment,
// linked to an invoice or a subscription.
type PaymentProof struct {
	ID             string      `db:"id" json:"id"`
	UserID         string      `db:"user_id" json:"user_id"`
	InvoiceID      *string     `db:"invoice_id" json:"invoice_id,omitempty"`
	SubscriptionID *string     `db:"subscription_id" json:"subscription_id,omitempty"`
	TxHash         string      `db:"tx_hash" json:"tx_hash"`
	ScreenshotURL  string      `db:"screenshot_url" json:"screenshot_url"`
	Status         ProofStatus `db:"status" json:"status"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}
