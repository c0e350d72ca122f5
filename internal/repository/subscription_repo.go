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

// SubscriptionRepository defines methods for accessing subscription and plan data.
type SubscriptionRepository interface {
	GetPlanByID(ctx context.Context, planID string) (*model.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*model.Plan, error)

	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	GetBySubFor(ctx context.Context, subFor string) (*model.Subscription, error)
	Create(ctx context.Context, sub *model.Subscription) error
	// SetPrepaidEnd flips the subscription to prepaid with the given paid-through date.
	SetPrepaidEnd(ctx context.Context, id string, end time.Time) error
	// SetEndDate updates only the paid-through date.
	SetEndDate(ctx context.Context, id string, end time.Time) error
	ListActivePostpaid(ctx context.Context) ([]model.Subscription, error)
	ListSuspended(ctx context.Context) ([]model.Subscription, error)
	// Suspend moves an active subscription to suspended; a no-op for any other state.
	Suspend(ctx context.Context, id string) error
	Reactivate(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) GetPlanByID(ctx context.Context, planID string) (*model.Plan, error) {
	const q = `SELECT id, name, price, description FROM plans WHERE id = $1`
	var p model.Plan
	if err := r.pool.QueryRow(ctx, q, planID).Scan(&p.ID, &p.Name, &p.Price, &p.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch plan %s: %w", planID, err)
	}
	return &p, nil
}

func (r *subscriptionRepo) GetPlanByName(ctx context.Context, name string) (*model.Plan, error) {
	const q = `SELECT id, name, price, description FROM plans WHERE name = $1`
	var p model.Plan
	if err := r.pool.QueryRow(ctx, q, name).Scan(&p.ID, &p.Name, &p.Price, &p.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch plan %q: %w", name, err)
	}
	return &p, nil
}

const subColumns = `id, user_id, plan_id, sub_for, start_date, end_date, billing_type, status`

func scanSub(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.SubFor, &s.StartDate, &s.EndDate, &s.BillingType, &s.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSub(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", id, err)
	}
	return s, nil
}

func (r *subscriptionRepo) GetBySubFor(ctx context.Context, subFor string) (*model.Subscription, error) {
	q := `SELECT ` + subColumns + ` FROM subscriptions WHERE sub_for = $1`
	s, err := scanSub(r.pool.QueryRow(ctx, q, subFor))
	if err != nil {
		return nil, fmt.Errorf("fetch subscription for %s: %w", subFor, err)
	}
	return s, nil
}

func (r *subscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	const q = `
        INSERT INTO subscriptions (id, user_id, plan_id, sub_for, start_date, end_date, billing_type, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.pool.Exec(ctx, q, sub.ID, sub.UserID, sub.PlanID, sub.SubFor, sub.StartDate, sub.EndDate, sub.BillingType, sub.Status)
	if err != nil {
		return fmt.Errorf("creating subscription for %s: %w", sub.SubFor, err)
	}
	return nil
}

func (r *subscriptionRepo) SetPrepaidEnd(ctx context.Context, id string, end time.Time) error {
	const q = `UPDATE subscriptions SET end_date = $2, billing_type = 'prepaid' WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, end); err != nil {
		return fmt.Errorf("extending subscription %s: %w", id, err)
	}
	return nil
}

func (r *subscriptionRepo) SetEndDate(ctx context.Context, id string, end time.Time) error {
	const q = `UPDATE subscriptions SET end_date = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, end); err != nil {
		return fmt.Errorf("updating end date for subscription %s: %w", id, err)
	}
	return nil
}

func (r *subscriptionRepo) listSubs(ctx context.Context, q string) ([]model.Subscription, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.PlanID, &s.SubFor, &s.StartDate, &s.EndDate, &s.BillingType, &s.Status); err != nil {
			return nil, fmt.Errorf("scanning subscription row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionRepo) ListActivePostpaid(ctx context.Context) ([]model.Subscription, error) {
	subs, err := r.listSubs(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE billing_type = 'postpaid' AND status = 'active' ORDER BY start_date`)
	if err != nil {
		return nil, fmt.Errorf("listing active postpaid subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepo) ListSuspended(ctx context.Context) ([]model.Subscription, error) {
	subs, err := r.listSubs(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE status = 'suspended' ORDER BY start_date`)
	if err != nil {
		return nil, fmt.Errorf("listing suspended subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepo) Suspend(ctx context.Context, id string) error {
	const q = `UPDATE subscriptions SET status = 'suspended' WHERE id = $1 AND status = 'active'`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("suspending subscription %s: %w", id, err)
	}
	return nil
}

func (r *subscriptionRepo) Reactivate(ctx context.Context, id string) error {
	const q = `UPDATE subscriptions SET status = 'active' WHERE id = $1 AND status = 'suspended'`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("reactivating subscription %s: %w", id, err)
	}
	return nil
}

func (r *subscriptionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting subscription %s: %w", id, err)
	}
	return nil
}
