package model

import "time"

// BillingType distinguishes how a subscription is charged.
type BillingType string

const (
	BillingPostpaid BillingType = "postpaid"
	BillingPrepaid  BillingType = "prepaid"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// InvoiceStatus marks whether an invoice has been settled.
type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "unpaid"
	InvoicePaid   InvoiceStatus = "paid"
)

// Plan is read-mostly reference data. Price is in minor units (cents) per month.
type Plan struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Price       int64  `db:"price" json:"price"`
	Description string `db:"description" json:"description"`
}

// Subscription bills one tenant, identified by SubFor (the generated database
// name, or the storage instance name). At most one subscription per SubFor.
// Postpaid subscriptions have no fixed end; prepaid ones are paid through
// EndDate.
type Subscription struct {
	ID          string             `db:"id" json:"id"`
	UserID      string             `db:"user_id" json:"user_id"`
	PlanID      string             `db:"plan_id" json:"plan_id"`
	SubFor      string             `db:"sub_for" json:"sub_for"`
	StartDate   time.Time          `db:"start_date" json:"start_date"`
	EndDate     *time.Time         `db:"end_date" json:"end_date,omitempty"`
	BillingType BillingType        `db:"billing_type" json:"billing_type"`
	Status      SubscriptionStatus `db:"status" json:"status"`
}

// Invoice covers one billing period of a subscription. At most one invoice per
// (subscription, period) pair.
type Invoice struct {
	ID             string        `db:"id" json:"id"`
	UserID         string        `db:"user_id" json:"user_id"`
	SubscriptionID string        `db:"subscription_id" json:"subscription_id"`
	Amount         int64         `db:"amount" json:"amount"`
	Status         InvoiceStatus `db:"status" json:"status"`
	PeriodStart    time.Time     `db:"period_start" json:"period_start"`
	PeriodEnd      time.Time     `db:"period_end" json:"period_end"`
	DueDate        time.Time     `db:"due_date" json:"due_date"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// BillingLog is an append-only audit record of a billing action.
type BillingLog struct {
	ID        string    `db:"id" json:"id"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
