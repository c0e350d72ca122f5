package repository

import (
	"context"
	"errors"
	"fmt"

	"shardz/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantRepository persists control-plane records for database tenants.
type TenantRepository interface {
	CountByUser(ctx context.Context, userID string) (int, error)
	GetByID(ctx context.Context, id string) (*model.DatabaseInstance, error)
	GetByDatabaseName(ctx context.Context, name string) (*model.DatabaseInstance, error)
	ListByUser(ctx context.Context, userID string) ([]model.DatabaseInstance, error)
	// CreateWithSubscription inserts the tenant record and its initial
	// subscription in one transaction: the control-plane record never exists
	// without its billing entry.
	CreateWithSubscription(ctx context.Context, inst *model.DatabaseInstance, sub *model.Subscription) error
	// DeleteWithSubscription removes the tenant record and any subscription
	// keyed by its database name in one transaction.
	DeleteWithSubscription(ctx context.Context, id, subFor string) error
}

type tenantRepo struct {
	pool *pgxpool.Pool
}

// NewTenantRepo creates a new TenantRepository.
func NewTenantRepo(pool *pgxpool.Pool) TenantRepository {
	return &tenantRepo{pool: pool}
}

const tenantColumns = `id, user_id, kind, username, database_name, password, uri, created_at`

func scanTenant(row pgx.Row) (*model.DatabaseInstance, error) {
	var t model.DatabaseInstance
	err := row.Scan(&t.ID, &t.UserID, &t.Kind, &t.Username, &t.DatabaseName, &t.Password, &t.URI, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM database_instances WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting tenants for user %s: %w", userID, err)
	}
	return n, nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*model.DatabaseInstance, error) {
	q := `SELECT ` + tenantColumns + ` FROM database_instances WHERE id = $1`
	t, err := scanTenant(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch tenant %s: %w", id, err)
	}
	return t, nil
}

func (r *tenantRepo) GetByDatabaseName(ctx context.Context, name string) (*model.DatabaseInstance, error) {
	q := `SELECT ` + tenantColumns + ` FROM database_instances WHERE database_name = $1`
	t, err := scanTenant(r.pool.QueryRow(ctx, q, name))
	if err != nil {
		return nil, fmt.Errorf("fetch tenant by database name %s: %w", name, err)
	}
	return t, nil
}

func (r *tenantRepo) ListByUser(ctx context.Context, userID string) ([]model.DatabaseInstance, error) {
	q := `SELECT ` + tenantColumns + ` FROM database_instances WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tenants for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.DatabaseInstance
	for rows.Next() {
		var t model.DatabaseInstance
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Username, &t.DatabaseName, &t.Password, &t.URI, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tenantRepo) CreateWithSubscription(ctx context.Context, inst *model.DatabaseInstance, sub *model.Subscription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting tenant create transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const instQ = `
        INSERT INTO database_instances (id, user_id, kind, username, database_name, password, uri)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at
    `
	if err := tx.QueryRow(ctx, instQ, inst.ID, inst.UserID, inst.Kind, inst.Username, inst.DatabaseName, inst.Password, inst.URI).Scan(&inst.CreatedAt); err != nil {
		return fmt.Errorf("inserting tenant record %s: %w", inst.DatabaseName, err)
	}

	const subQ = `
        INSERT INTO subscriptions (id, user_id, plan_id, sub_for, start_date, end_date, billing_type, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	if _, err := tx.Exec(ctx, subQ, sub.ID, sub.UserID, sub.PlanID, sub.SubFor, sub.StartDate, sub.EndDate, sub.BillingType, sub.Status); err != nil {
		return fmt.Errorf("inserting initial subscription for %s: %w", inst.DatabaseName, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tenant create for %s: %w", inst.DatabaseName, err)
	}
	return nil
}

func (r *tenantRepo) DeleteWithSubscription(ctx context.Context, id, subFor string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting tenant delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE sub_for = $1`, subFor); err != nil {
		return fmt.Errorf("deleting subscription for %s: %w", subFor, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM database_instances WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting tenant record %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tenant delete for %s: %w", id, err)
	}
	return nil
}
