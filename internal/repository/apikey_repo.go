package repository

import (
	"context"
	"errors"
	"fmt"

	"shardz/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKeyRepository stores hashed API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, k *model.APIKey) error
	// GetActiveByHash returns the key matching the hash, nil if absent or revoked.
	GetActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error)
	ListByUser(ctx context.Context, userID string) ([]model.APIKey, error)
	Revoke(ctx context.Context, id, userID string) error
}

type apiKeyRepo struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepo creates a new APIKeyRepository.
func NewAPIKeyRepo(pool *pgxpool.Pool) APIKeyRepository {
	return &apiKeyRepo{pool: pool}
}

func (r *apiKeyRepo) Create(ctx context.Context, k *model.APIKey) error {
	const q = `
        INSERT INTO api_keys (id, user_id, key_hash, revoked)
        VALUES ($1, $2, $3, false)
        RETURNING created_at
    `
	if err := r.pool.QueryRow(ctx, q, k.ID, k.UserID, k.KeyHash).Scan(&k.CreatedAt); err != nil {
		return fmt.Errorf("creating api key for user %s: %w", k.UserID, err)
	}
	return nil
}

func (r *apiKeyRepo) GetActiveByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	const q = `
        SELECT id, user_id, key_hash, revoked, created_at
        FROM api_keys WHERE key_hash = $1 AND NOT revoked
    `
	var k model.APIKey
	err := r.pool.QueryRow(ctx, q, keyHash).Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Revoked, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch api key by hash: %w", err)
	}
	return &k, nil
}

func (r *apiKeyRepo) ListByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	const q = `SELECT id, user_id, key_hash, revoked, created_at FROM api_keys WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Revoked, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *apiKeyRepo) Revoke(ctx context.Context, id, userID string) error {
	const q = `UPDATE api_keys SET revoked = true WHERE id = $1 AND user_id = $2`
	if _, err := r.pool.Exec(ctx, q, id, userID); err != nil {
		return fmt.Errorf("revoking api key %s: %w", id, err)
	}
	return nil
}
