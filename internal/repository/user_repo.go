package repository

import (
	"context"
	"errors"
	"fmt"

	"shardz/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository defines methods for accessing user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertOAuthUser finds a user by provider+subject, creating one on first
	// login. The returned user is always non-nil on success.
	UpsertOAuthUser(ctx context.Context, provider, subject, email, username string) (*model.User, error)
}

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, username, password_hash, oauth_provider, oauth_subject, database_limit, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.OAuthProvider, &u.OAuthSubject, &u.DatabaseLimit, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	const q = `
        INSERT INTO users (id, email, username, password_hash, database_limit)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at
    `
	err := r.pool.QueryRow(ctx, q, u.ID, u.Email, u.Username, u.PasswordHash, u.DatabaseLimit).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.Email, err)
	}
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, email))
	if err != nil {
		return nil, fmt.Errorf("fetch user by email: %w", err)
	}
	return u, nil
}

func (r *userRepo) UpsertOAuthUser(ctx context.Context, provider, subject, email, username string) (*model.User, error) {
	const q = `
        INSERT INTO users (id, email, username, password_hash, oauth_provider, oauth_subject, database_limit)
        VALUES (gen_random_uuid(), $1, $2, '', $3, $4, 3)
        ON CONFLICT (oauth_provider, oauth_subject) DO UPDATE SET email = EXCLUDED.email
        RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, email, username, provider, subject))
	if err != nil {
		return nil, fmt.Errorf("upsert oauth user %s/%s: %w", provider, subject, err)
	}
	return u, nil
}
