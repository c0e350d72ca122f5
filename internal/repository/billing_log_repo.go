package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BillingLogRepository appends to the billing audit trail. Rows are never
// updated or deleted.
type BillingLogRepository interface {
	Append(ctx context.Context, action, details string) error
}

type billingLogRepo struct {
	pool *pgxpool.Pool
}

// NewBillingLogRepo creates a new BillingLogRepository.
func NewBillingLogRepo(pool *pgxpool.Pool) BillingLogRepository {
	return &billingLogRepo{pool: pool}
}

func (r *billingLogRepo) Append(ctx context.Context, action, details string) error {
	const q = `INSERT INTO billing_logs (id, action, details) VALUES (gen_random_uuid(), $1, $2)`
	if _, err := r.pool.Exec(ctx, q, action, details); err != nil {
		return fmt.Errorf("appending billing log %q: %w", action, err)
	}
	return nil
}
