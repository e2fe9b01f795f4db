package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
)

// BusinessStore is the persistence surface for tenants.
type BusinessStore interface {
	Create(ctx context.Context, b *domain.Business) error
	GetByID(ctx context.Context, id string) (*domain.Business, error)
	List(ctx context.Context) ([]*domain.Business, error)
	Update(ctx context.Context, b *domain.Business) error
	Delete(ctx context.Context, id string) error
}

// APIKeyStore is the persistence surface for API keys.
type APIKeyStore interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, businessID, id string, at time.Time) error
}

// BusinessService manages tenants and their API keys. Raw keys are shown
// exactly once at issue time; only the hash is stored.
type BusinessService struct {
	businesses BusinessStore
	keys       APIKeyStore
	logger     *zap.Logger
	uuidGen    UUIDGenerator
}

func NewBusinessService(businesses BusinessStore, keys APIKeyStore, logger *zap.Logger) *BusinessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusinessService{
		businesses: businesses,
		keys:       keys,
		logger:     logger,
		uuidGen:    &DefaultUUIDGenerator{},
	}
}

func (s *BusinessService) CreateBusiness(ctx context.Context, name, website string) (*domain.Business, error) {
	now := time.Now().UTC()
	b := &domain.Business{
		ID:        s.uuidGen.NewString(),
		Name:      name,
		Website:   website,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.businesses.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("business created", zap.String("business_id", b.ID), zap.String("name", b.Name))
	return b, nil
}

func (s *BusinessService) GetBusiness(ctx context.Context, id string) (*domain.Business, error) {
	if id == "" {
		return nil, domain.ErrMissingBusinessID
	}
	return s.businesses.GetByID(ctx, id)
}

func (s *BusinessService) ListBusinesses(ctx context.Context) ([]*domain.Business, error) {
	return s.businesses.List(ctx)
}

func (s *BusinessService) UpdateBusiness(ctx context.Context, id, name, website string) (*domain.Business, error) {
	b, err := s.businesses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		b.Name = name
	}
	if website != "" {
		b.Website = website
	}
	b.UpdatedAt = time.Now().UTC()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.businesses.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BusinessService) DeleteBusiness(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrMissingBusinessID
	}
	return s.businesses.Delete(ctx, id)
}

// IssueAPIKey mints a new key for a business. The returned raw key is the
// only time it is ever visible.
func (s *BusinessService) IssueAPIKey(ctx context.Context, businessID, name string) (string, *domain.APIKey, error) {
	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return "", nil, err
	}

	raw, hash, err := domain.GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	key := &domain.APIKey{
		ID:         s.uuidGen.NewString(),
		BusinessID: businessID,
		Name:       name,
		KeyHash:    hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return "", nil, err
	}
	s.logger.Info("api key issued",
		zap.String("business_id", businessID), zap.String("key_id", key.ID))
	return raw, key, nil
}

func (s *BusinessService) ListAPIKeys(ctx context.Context, businessID string) ([]*domain.APIKey, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}
	return s.keys.ListByBusiness(ctx, businessID)
}

func (s *BusinessService) RevokeAPIKey(ctx context.Context, businessID, keyID string) error {
	if err := s.keys.Revoke(ctx, businessID, keyID, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info("api key revoked",
		zap.String("business_id", businessID), zap.String("key_id", keyID))
	return nil
}

// ValidateAPIKey resolves a raw key to its business. Revoked keys fail
// with the same status as unknown ones at the HTTP layer.
func (s *BusinessService) ValidateAPIKey(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", domain.ErrInvalidAPIKey
	}
	key, err := s.keys.GetByHash(ctx, domain.HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return "", domain.ErrInvalidAPIKey
		}
		return "", err
	}
	if key.Revoked() {
		return "", domain.ErrAPIKeyRevoked
	}
	return key.BusinessID, nil
}
