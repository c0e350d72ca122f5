package repository

import (
	"context"
	"errors"
	"fmt"

	"shardz/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrQuotaExceeded is returned when a space reservation would push a storage
// instance past its quota.
var ErrQuotaExceeded = errors.New("storage_quota_exceeded")

// StorageRepository persists storage instances and object metadata.
type StorageRepository interface {
	Create(ctx context.Context, s *model.StorageInstance) error
	GetByUserID(ctx context.Context, userID string) (*model.StorageInstance, error)
	// ReserveSpace atomically adds delta to used_space, failing with
	// ErrQuotaExceeded when the result would exceed the quota. The conditional
	// update is what serializes concurrent uploads racing on the quota check.
	ReserveSpace(ctx context.Context, storageID string, delta int64) error
	// ReleaseSpace subtracts n from used_space, floored at zero.
	ReleaseSpace(ctx context.Context, storageID string, n int64) error

	CreateObject(ctx context.Context, o *model.StoredObject) error
	GetObjectByName(ctx context.Context, storageID, filename string) (*model.StoredObject, error)
	GetObjectByID(ctx context.Context, id string) (*model.StoredObject, error)
	ListObjects(ctx context.Context, storageID string) ([]model.StoredObject, error)
	// DeleteObject removes the metadata row and releases its size in one
	// transaction.
	DeleteObject(ctx context.Context, id string, size int64, storageID string) error
	CountObjectsByUser(ctx context.Context, userID string) (int, error)
}

type storageRepo struct {
	pool *pgxpool.Pool
}

// NewStorageRepo creates a new StorageRepository.
func NewStorageRepo(pool *pgxpool.Pool) StorageRepository {
	return &storageRepo{pool: pool}
}

func (r *storageRepo) Create(ctx context.Context, s *model.StorageInstance) error {
	const q = `
        INSERT INTO storage_instances (id, user_id, name, folder_path, quota, used_space)
        VALUES ($1, $2, $3, $4, $5, 0)
        RETURNING created_at
    `
	err := r.pool.QueryRow(ctx, q, s.ID, s.UserID, s.Name, s.FolderPath, s.Quota).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating storage instance for user %s: %w", s.UserID, err)
	}
	return nil
}

func (r *storageRepo) GetByUserID(ctx context.Context, userID string) (*model.StorageInstance, error) {
	const q = `
        SELECT id, user_id, name, folder_path, quota, used_space, created_at
        FROM storage_instances WHERE user_id = $1
    `
	var s model.StorageInstance
	err := r.pool.QueryRow(ctx, q, userID).Scan(&s.ID, &s.UserID, &s.Name, &s.FolderPath, &s.Quota, &s.UsedSpace, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch storage instance for user %s: %w", userID, err)
	}
	return &s, nil
}

func (r *storageRepo) ReserveSpace(ctx context.Context, storageID string, delta int64) error {
	const q = `
        UPDATE storage_instances
        SET used_space = used_space + $2
        WHERE id = $1 AND used_space + $2 <= quota
    `
	tag, err := r.pool.Exec(ctx, q, storageID, delta)
	if err != nil {
		return fmt.Errorf("reserving %d bytes on storage %s: %w", delta, storageID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (r *storageRepo) ReleaseSpace(ctx context.Context, storageID string, n int64) error {
	const q = `UPDATE storage_instances SET used_space = GREATEST(used_space - $2, 0) WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, storageID, n); err != nil {
		return fmt.Errorf("releasing %d bytes on storage %s: %w", n, storageID, err)
	}
	return nil
}

func (r *storageRepo) CreateObject(ctx context.Context, o *model.StoredObject) error {
	const q = `
        INSERT INTO stored_objects (id, user_id, storage_id, filename, url, size, mime_type)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at
    `
	err := r.pool.QueryRow(ctx, q, o.ID, o.UserID, o.StorageID, o.Filename, o.URL, o.Size, o.MimeType).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating object %s: %w", o.Filename, err)
	}
	return nil
}

const objectColumns = `id, user_id, storage_id, filename, url, size, mime_type, created_at`

func scanObject(row pgx.Row) (*model.StoredObject, error) {
	var o model.StoredObject
	err := row.Scan(&o.ID, &o.UserID, &o.StorageID, &o.Filename, &o.URL, &o.Size, &o.MimeType, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *storageRepo) GetObjectByName(ctx context.Context, storageID, filename string) (*model.StoredObject, error) {
	q := `SELECT ` + objectColumns + ` FROM stored_objects WHERE storage_id = $1 AND filename = $2`
	o, err := scanObject(r.pool.QueryRow(ctx, q, storageID, filename))
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", filename, err)
	}
	return o, nil
}

func (r *storageRepo) GetObjectByID(ctx context.Context, id string) (*model.StoredObject, error) {
	q := `SELECT ` + objectColumns + ` FROM stored_objects WHERE id = $1`
	o, err := scanObject(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", id, err)
	}
	return o, nil
}

func (r *storageRepo) ListObjects(ctx context.Context, storageID string) ([]model.StoredObject, error) {
	q := `SELECT ` + objectColumns + ` FROM stored_objects WHERE storage_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, storageID)
	if err != nil {
		return nil, fmt.Errorf("listing objects for storage %s: %w", storageID, err)
	}
	defer rows.Close()

	var out []model.StoredObject
	for rows.Next() {
		var o model.StoredObject
		if err := rows.Scan(&o.ID, &o.UserID, &o.StorageID, &o.Filename, &o.URL, &o.Size, &o.MimeType, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning object row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *storageRepo) DeleteObject(ctx context.Context, id string, size int64, storageID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting object delete transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM stored_objects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting object %s: %w", id, err)
	}
	const release = `UPDATE storage_instances SET used_space = GREATEST(used_space - $2, 0) WHERE id = $1`
	if _, err := tx.Exec(ctx, release, storageID, size); err != nil {
		return fmt.Errorf("releasing space for object %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing object delete for %s: %w", id, err)
	}
	return nil
}

func (r *storageRepo) CountObjectsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM stored_objects WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting objects for user %s: %w", userID, err)
	}
	return n, nil
}
