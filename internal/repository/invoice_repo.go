package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shardz/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvoiceRepository defines methods for accessing invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *model.Invoice) error
	GetByID(ctx context.Context, id string) (*model.Invoice, error)
	// ExistsForPeriod reports whether the subscription already has an invoice
	// covering exactly [start, end].
	ExistsForPeriod(ctx context.Context, subscriptionID string, start, end time.Time) (bool, error)
	MarkPaid(ctx context.Context, id string) error
	// ListUnpaidDueBefore returns unpaid invoices whose due date is strictly
	// before the cutoff.
	ListUnpaidDueBefore(ctx context.Context, cutoff time.Time) ([]model.Invoice, error)
	// LatestForSubscription returns the most recently created invoice, or nil.
	LatestForSubscription(ctx context.Context, subscriptionID string) (*model.Invoice, error)
	ListByUser(ctx context.Context, userID string) ([]model.Invoice, error)
	CountUnpaidByUser(ctx context.Context, userID string) (int, error)
}

type invoiceRepo struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepo creates a new InvoiceRepository.
func NewInvoiceRepo(pool *pgxpool.Pool) InvoiceRepository {
	return &invoiceRepo{pool: pool}
}

const invoiceColumns = `id, user_id, subscription_id, amount, status, period_start, period_end, due_date, created_at`

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var inv model.Invoice
	err := row.Scan(&inv.ID, &inv.UserID, &inv.SubscriptionID, &inv.Amount, &inv.Status, &inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	const q = `
        INSERT INTO invoices (id, user_id, subscription_id, amount, status, period_start, period_end, due_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at
    `
	err := r.pool.QueryRow(ctx, q, inv.ID, inv.UserID, inv.SubscriptionID, inv.Amount, inv.Status, inv.PeriodStart, inv.PeriodEnd, inv.DueDate).Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating invoice for subscription %s: %w", inv.SubscriptionID, err)
	}
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, id string) (*model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch invoice %s: %w", id, err)
	}
	return inv, nil
}

func (r *invoiceRepo) ExistsForPeriod(ctx context.Context, subscriptionID string, start, end time.Time) (bool, error) {
	const q = `
        SELECT EXISTS (
            SELECT 1 FROM invoices
            WHERE subscription_id = $1 AND period_start = $2 AND period_end = $3
        )
    `
	var exists bool
	if err := r.pool.QueryRow(ctx, q, subscriptionID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking invoice period for subscription %s: %w", subscriptionID, err)
	}
	return exists, nil
}

func (r *invoiceRepo) MarkPaid(ctx context.Context, id string) error {
	const q = `UPDATE invoices SET status = 'paid' WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("marking invoice %s paid: %w", id, err)
	}
	return nil
}

func (r *invoiceRepo) ListUnpaidDueBefore(ctx context.Context, cutoff time.Time) ([]model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE status = 'unpaid' AND due_date < $1 ORDER BY due_date`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing overdue invoices: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *invoiceRepo) LatestForSubscription(ctx context.Context, subscriptionID string) (*model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE subscription_id = $1 ORDER BY created_at DESC LIMIT 1`
	inv, err := scanInvoice(r.pool.QueryRow(ctx, q, subscriptionID))
	if err != nil {
		return nil, fmt.Errorf("fetch latest invoice for subscription %s: %w", subscriptionID, err)
	}
	return inv, nil
}

func (r *invoiceRepo) ListByUser(ctx context.Context, userID string) ([]model.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing invoices for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *invoiceRepo) CountUnpaidByUser(ctx context.Context, userID string) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM invoices WHERE user_id = $1 AND status = 'unpaid'`
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unpaid invoices for user %s: %w", userID, err)
	}
	return n, nil
}

func collectInvoices(rows pgx.Rows) ([]model.Invoice, error) {
	var out []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.SubscriptionID, &inv.Amount, &inv.Status, &inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning invoice row: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
