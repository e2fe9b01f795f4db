//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/testutil"
)

func newStoredBusiness(ctx context.Context, t *testing.T, repo *BusinessRepository) *domain.Business {
	now := time.Now().UTC().Truncate(time.Microsecond)
	b := &domain.Business{
		ID:        uuid.NewString(),
		Name:      "Acme Dental",
		Website:   "https://acme-dental.example",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, b))
	return b
}

func TestBusinessRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewBusinessRepository(pool)
	b := newStoredBusiness(ctx, t, repo)

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Name, got.Name)
	assert.Equal(t, b.Website, got.Website)
}

func TestBusinessRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewBusinessRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrBusinessNotFound)
}

func TestBusinessRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	keyRepo := NewAPIKeyRepository(pool)

	b := newStoredBusiness(ctx, t, bizRepo)
	_, hash, err := domain.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, keyRepo.Create(ctx, &domain.APIKey{
		ID:         uuid.NewString(),
		BusinessID: b.ID,
		Name:       "widget",
		KeyHash:    hash,
		CreatedAt:  time.Now().UTC(),
	}))

	require.NoError(t, bizRepo.Delete(ctx, b.ID))

	_, err = keyRepo.GetByHash(ctx, hash)
	assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)
}

func TestAPIKeyRepository_RevokeRoundTrip(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	keyRepo := NewAPIKeyRepository(pool)

	b := newStoredBusiness(ctx, t, bizRepo)
	_, hash, err := domain.GenerateAPIKey()
	require.NoError(t, err)
	key := &domain.APIKey{
		ID:         uuid.NewString(),
		BusinessID: b.ID,
		Name:       "widget",
		KeyHash:    hash,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, keyRepo.Create(ctx, key))

	got, err := keyRepo.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.False(t, got.Revoked())

	require.NoError(t, keyRepo.Revoke(ctx, b.ID, key.ID, time.Now().UTC()))

	got, err = keyRepo.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, got.Revoked())
}

func TestAPIKeyRepository_ListByBusiness_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	keyRepo := NewAPIKeyRepository(pool)

	b1 := newStoredBusiness(ctx, t, bizRepo)
	b2 := newStoredBusiness(ctx, t, bizRepo)

	for _, bizID := range []string{b1.ID, b2.ID} {
		_, hash, err := domain.GenerateAPIKey()
		require.NoError(t, err)
		require.NoError(t, keyRepo.Create(ctx, &domain.APIKey{
			ID:         uuid.NewString(),
			BusinessID: bizID,
			Name:       "key",
			KeyHash:    hash,
			CreatedAt:  time.Now().UTC(),
		}))
	}

	keys, err := keyRepo.ListByBusiness(ctx, b1.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, b1.ID, keys[0].BusinessID)
}
