package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shardz/internal/credgen"
	"shardz/internal/model"
	"shardz/internal/repository"
)

// APIKeyService issues and checks programmatic access keys. Only the hash is
// stored; the raw key is shown once at creation.
type APIKeyService interface {
	Issue(ctx context.Context, userID string) (string, *model.APIKey, error)
	// Authenticate resolves a raw key to its owner's user ID, or
	// ErrInvalidCredentials.
	Authenticate(ctx context.Context, rawKey string) (string, error)
	List(ctx context.Context, userID string) ([]model.APIKey, error)
	Revoke(ctx context.Context, userID, keyID string) error
}

type apiKeyService struct {
	keys repository.APIKeyRepository
}

func NewAPIKeyService(keys repository.APIKeyRepository) APIKeyService {
	return &apiKeyService{keys: keys}
}

func (s *apiKeyService) Issue(ctx context.Context, userID string) (string, *model.APIKey, error) {
	raw, hash := credgen.APIKey()
	k := &model.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.keys.Create(ctx, k); err != nil {
		return "", nil, err
	}
	return raw, k, nil
}

func (s *apiKeyService) Authenticate(ctx context.Context, rawKey string) (string, error) {
	k, err := s.keys.GetActiveByHash(ctx, credgen.HashAPIKey(rawKey))
	if err != nil {
		return "", err
	}
	if k == nil {
		return "", ErrInvalidCredentials
	}
	return k.UserID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID string) ([]model.APIKey, error) {
	return s.keys.ListByUser(ctx, userID)
}

func (s *apiKeyService) Revoke(ctx context.Context, userID, keyID string) error {
	return s.keys.Revoke(ctx, keyID, userID)
}
