package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardz/internal/model"
	"shardz/internal/repository"
	"shardz/internal/util"
)

// allowedExtensions limits uploads to plain content types. Anything else is
// rejected before touching quota.
var allowedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".csv": true, ".json": true, ".md": true,
	".zip": true, ".sql": true,
}

// StorageService manages per-user object storage. Each user gets at most one
// storage instance with a fixed byte quota; quota accounting happens before
// any bytes touch disk, so concurrent uploads can never overshoot it.
type StorageService interface {
	CreateInstance(ctx context.Context, userID, name string) (*model.StorageInstance, error)
	GetInstance(ctx context.Context, userID string) (*model.StorageInstance, error)

	// Upload reserves size bytes of quota, writes the content under the
	// instance folder, and records the object. A failure at any point after
	// the reservation releases it.
	Upload(ctx context.Context, userID, filename, mimeType string, content io.Reader, size int64) (*model.StoredObject, error)
	// Open returns the object record and the on-disk path for serving.
	Open(ctx context.Context, userID, filename string) (*model.StoredObject, string, error)
	DeleteObject(ctx context.Context, userID, objectID string) error
	ListObjects(ctx context.Context, userID string) ([]model.StoredObject, error)
	CountObjects(ctx context.Context, userID string) (int, error)
}

type storageService struct {
	storage repository.StorageRepository
	subs    repository.SubscriptionRepository

	root    string
	quota   int64
	baseURL string

	storageLogger zerolog.Logger
}

// NewStorageService creates a new StorageService
func NewStorageService(
	storage repository.StorageRepository,
	subs repository.SubscriptionRepository,
	root string,
	quota int64,
	baseURL string,
	logger zerolog.Logger,
) StorageService {
	return &storageService{
		storage:       storage,
		subs:          subs,
		root:          root,
		quota:         quota,
		baseURL:       baseURL,
		storageLogger: logger.With().Str("service", "StorageService").Logger(),
	}
}

// CreateInstance provisions the user's storage instance: a folder under the
// storage root plus a postpaid subscription on the storage plan. A user holds
// at most one instance; a repeat call returns the existing one.
func (s *storageService) CreateInstance(ctx context.Context, userID, name string) (*model.StorageInstance, error) {
	existing, err := s.storage.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.storageLogger.Warn().
			Str("user_id", userID).
			Str("storage_id", existing.ID).
			Msg("storage instance already provisioned")
		return existing, nil
	}

	inst := &model.StorageInstance{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		Quota:      s.quota,
		UsedSpace:  0,
		CreatedAt:  time.Now().UTC(),
		FolderPath: filepath.Join(s.root, userID),
	}
	if err := os.MkdirAll(inst.FolderPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage folder: %w", err)
	}

	if err := s.storage.Create(ctx, inst); err != nil {
		return nil, err
	}

	plan, err := s.subs.GetPlanByName(ctx, "storage")
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("billing plan %q is not seeded", "storage")
	}
	sub := &model.Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		PlanID:      plan.ID,
		SubFor:      inst.ID,
		StartDate:   inst.CreatedAt,
		BillingType: model.BillingPostpaid,
		Status:      model.SubscriptionActive,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.storageLogger.Info().
		Str("user_id", userID).
		Str("storage_id", inst.ID).
		Int64("quota", inst.Quota).
		Msg("storage instance provisioned")
	return inst, nil
}

func (s *storageService) GetInstance(ctx context.Context, userID string) (*model.StorageInstance, error) {
	inst, err := s.storage.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	return inst, nil
}

func (s *storageService) Upload(ctx context.Context, userID, filename, mimeType string, content io.Reader, size int64) (*model.StoredObject, error) {
	if filename == "" || size <= 0 {
		return nil, ErrNoFile
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}

	inst, err := s.GetInstance(ctx, userID)
	if err != nil {
		return nil, err
	}

	clean := util.SanitizeFilename(filename)
	existing, err := s.storage.GetObjectByName(ctx, inst.ID, clean)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrObjectExists, clean)
	}

	// Quota is reserved before the write. The conditional update in the
	// repository is the only admission check, so parallel uploads cannot
	// jointly exceed the quota.
	if err := s.storage.ReserveSpace(ctx, inst.ID, size); err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, fmt.Errorf("%w: %d bytes over storage quota", ErrQuotaExceeded, size)
		}
		return nil, err
	}

	path := filepath.Join(inst.FolderPath, clean)
	if err := writeFile(path, content); err != nil {
		s.releaseReservation(ctx, inst.ID, size, path)
		return nil, fmt.Errorf("writing object %s: %w", clean, err)
	}

	obj := &model.StoredObject{
		ID:        uuid.NewString(),
		UserID:    userID,
		StorageID: inst.ID,
		Filename:  clean,
		URL:       s.baseURL + "/api/v1/storage/files/" + clean,
		Size:      size,
		MimeType:  mimeType,
	}
	if err := s.storage.CreateObject(ctx, obj); err != nil {
		s.releaseReservation(ctx, inst.ID, size, path)
		return nil, err
	}
	return obj, nil
}

func writeFile(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// releaseReservation undoes a quota reservation after a failed write and
// removes any partial file.
func (s *storageService) releaseReservation(ctx context.Context, storageID string, size int64, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.storageLogger.Error().Err(err).Str("path", path).Msg("partial object removal failed")
	}
	if err := s.storage.ReleaseSpace(ctx, storageID, size); err != nil {
		s.storageLogger.Error().Err(err).
			Str("storage_id", storageID).
			Int64("size", size).
			Msg("quota release failed, used space overstated")
	}
}

func (s *storageService) Open(ctx context.Context, userID, filename string) (*model.StoredObject, string, error) {
	inst, err := s.GetInstance(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	obj, err := s.storage.GetObjectByName(ctx, inst.ID, util.SanitizeFilename(filename))
	if err != nil {
		return nil, "", err
	}
	if obj == nil {
		return nil, "", ErrNotFound
	}
	return obj, filepath.Join(inst.FolderPath, obj.Filename), nil
}

func (s *storageService) DeleteObject(ctx context.Context, userID, objectID string) error {
	obj, err := s.storage.GetObjectByID(ctx, objectID)
	if err != nil {
		return err
	}
	if obj == nil {
		return ErrNotFound
	}
	if obj.UserID != userID {
		return ErrForbidden
	}

	inst, err := s.GetInstance(ctx, userID)
	if err != nil {
		return err
	}
	path := filepath.Join(inst.FolderPath, obj.Filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing object file: %w", err)
	}
	return s.storage.DeleteObject(ctx, obj.ID, obj.Size, obj.StorageID)
}

func (s *storageService) ListObjects(ctx context.Context, userID string) ([]model.StoredObject, error) {
	inst, err := s.GetInstance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.storage.ListObjects(ctx, inst.ID)
}

func (s *storageService) CountObjects(ctx context.Context, userID string) (int, error) {
	return s.storage.CountObjectsByUser(ctx, userID)
}
