package repository

import (
	"context"
	"errors"
	"fmt"

	"shardz/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository defines methods for gateway payments and manual proofs.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByReference(ctx context.Context, reference string) (*model.Payment, error)
	// MarkSuccess flips a pending payment to success; returns false if the
	// payment was not pending (the replay guard for repeated verify calls).
	MarkSuccess(ctx context.Context, reference string) (bool, error)
	MarkFailed(ctx context.Context, reference string) error

	CreateProof(ctx context.Context, p *model.PaymentProof) error
	GetProofByID(ctx context.Context, id string) (*model.PaymentProof, error)
	SetProofStatus(ctx context.Context, id string, status model.ProofStatus) error
	ListProofsByStatus(ctx context.Context, status model.ProofStatus) ([]model.PaymentProof, error)
}

type paymentRepo struct {
	pool *pgxpool.Pool
}

// NewPaymentRepo creates a new PaymentRepository.
func NewPaymentRepo(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepo{pool: pool}
}

func (r *paymentRepo) Create(ctx context.Context, p *model.Payment) error {
	const q = `
        INSERT INTO payments (id, reference, user_id, invoice_id, subscription_id, amount, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at
    `
	err := r.pool.QueryRow(ctx, q, p.ID, p.Reference, p.UserID, p.InvoiceID, p.SubscriptionID, p.Amount, p.Status).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment %s: %w", p.Reference, err)
	}
	return nil
}

func (r *paymentRepo) GetByReference(ctx context.Context, reference string) (*model.Payment, error) {
	const q = `
        SELECT id, reference, user_id, invoice_id, subscription_id, amount, status, created_at
        FROM payments WHERE reference = $1
    `
	var p model.Payment
	err := r.pool.QueryRow(ctx, q, reference).Scan(&p.ID, &p.Reference, &p.UserID, &p.InvoiceID, &p.SubscriptionID, &p.Amount, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch payment %s: %w", reference, err)
	}
	return &p, nil
}

func (r *paymentRepo) MarkSuccess(ctx context.Context, reference string) (bool, error) {
	const q = `UPDATE payments SET status = 'success' WHERE reference = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, reference)
	if err != nil {
		return false, fmt.Errorf("marking payment %s success: %w", reference, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) MarkFailed(ctx context.Context, reference string) error {
	const q = `UPDATE payments SET status = 'failed' WHERE reference = $1 AND status = 'pending'`
	if _, err := r.pool.Exec(ctx, q, reference); err != nil {
		return fmt.Errorf("marking payment %s failed: %w", reference, err)
	}
	return nil
}

func (r *paymentRepo) CreateProof(ctx context.Context, p *model.PaymentProof) error {
	const q = `
        INSERT INTO payment_proofs (id, user_id, invoice_id, subscription_id, tx_hash, screenshot_url, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at
    `
	err := r.pool.QueryRow(ctx, q, p.ID, p.UserID, p.InvoiceID, p.SubscriptionID, p.TxHash, p.ScreenshotURL, p.Status).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment proof: %w", err)
	}
	return nil
}

func (r *paymentRepo) GetProofByID(ctx context.Context, id string) (*model.PaymentProof, error) {
	const q = `
        SELECT id, user_id, invoice_id, subscription_id, tx_hash, screenshot_url, status, created_at
        FROM payment_proofs WHERE id = $1
    `
	var p model.PaymentProof
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.UserID, &p.InvoiceID, &p.SubscriptionID, &p.TxHash, &p.ScreenshotURL, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch proof %s: %w", id, err)
	}
	return &p, nil
}

func (r *paymentRepo) SetProofStatus(ctx context.Context, id string, status model.ProofStatus) error {
	const q = `UPDATE payment_proofs SET status = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("updating proof %s: %w", id, err)
	}
	return nil
}

func (r *paymentRepo) ListProofsByStatus(ctx context.Context, status model.ProofStatus) ([]model.PaymentProof, error) {
	const q = `
        SELECT id, user_id, invoice_id, subscription_id, tx_hash, screenshot_url, status, created_at
        FROM payment_proofs WHERE status = $1 ORDER BY created_at
    `
	rows, err := r.pool.Query(ctx, q, status)
	if err != nil {
		return nil, fmt.Errorf("listing %s proofs: %w", status, err)
	}
	defer rows.Close()

	var out []model.PaymentProof
	for rows.Next() {
		var p model.PaymentProof
		if err := rows.Scan(&p.ID, &p.UserID, &p.InvoiceID, &p.SubscriptionID, &p.TxHash, &p.ScreenshotURL, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning proof row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
