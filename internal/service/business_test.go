package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/domain"
)

type fakeBusinessStore struct {
	businesses map[string]*domain.Business
}

func newFakeBusinessStore() *fakeBusinessStore {
	return &fakeBusinessStore{businesses: make(map[string]*domain.Business)}
}

func (f *fakeBusinessStore) Create(_ context.Context, b *domain.Business) error {
	copied := *b
	f.businesses[b.ID] = &copied
	return nil
}

func (f *fakeBusinessStore) GetByID(_ context.Context, id string) (*domain.Business, error) {
	b, ok := f.businesses[id]
	if !ok {
		return nil, domain.ErrBusinessNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBusinessStore) List(_ context.Context) ([]*domain.Business, error) {
	var out []*domain.Business
	for _, b := range f.businesses {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBusinessStore) Update(_ context.Context, b *domain.Business) error {
	if _, ok := f.businesses[b.ID]; !ok {
		return domain.ErrBusinessNotFound
	}
	copied := *b
	f.businesses[b.ID] = &copied
	return nil
}

func (f *fakeBusinessStore) Delete(_ context.Context, id string) error {
	if _, ok := f.businesses[id]; !ok {
		return domain.ErrBusinessNotFound
	}
	delete(f.businesses, id)
	return nil
}

type fakeAPIKeyStore struct {
	keys map[string]*domain.APIKey
}

func newFakeAPIKeyStore() *fakeAPIKeyStore {
	return &fakeAPIKeyStore{keys: make(map[string]*domain.APIKey)}
}

func (f *fakeAPIKeyStore) Create(_ context.Context, key *domain.APIKey) error {
	copied := *key
	f.keys[key.ID] = &copied
	return nil
}

func (f *fakeAPIKeyStore) GetByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	for _, k := range f.keys {
		if k.KeyHash == hash {
			copied := *k
			return &copied, nil
		}
	}
	return nil, domain.ErrAPIKeyNotFound
}

func (f *fakeAPIKeyStore) ListByBusiness(_ context.Context, businessID string) ([]*domain.APIKey, error) {
	var out []*domain.APIKey
	for _, k := range f.keys {
		if k.BusinessID == businessID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeAPIKeyStore) Revoke(_ context.Context, businessID, id string, at time.Time) error {
	k, ok := f.keys[id]
	if !ok || k.BusinessID != businessID {
		return domain.ErrAPIKeyNotFound
	}
	if k.RevokedAt == nil {
		k.RevokedAt = &at
	}
	return nil
}

func newBusinessFixture() (*BusinessService, *fakeBusinessStore, *fakeAPIKeyStore) {
	businesses := newFakeBusinessStore()
	keys := newFakeAPIKeyStore()
	svc := NewBusinessService(businesses, keys, nil)
	svc.uuidGen = &seqUUID{}
	return svc, businesses, keys
}

func TestCreateBusiness(t *testing.T) {
	svc, store, _ := newBusinessFixture()

	b, err := svc.CreateBusiness(context.Background(), "Acme Corp", "https://acme.example")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Contains(t, store.businesses, b.ID)

	_, err = svc.CreateBusiness(context.Background(), "", "")
	assert.Error(t, err)
}

func TestUpdateBusiness_PartialFields(t *testing.T) {
	svc, _, _ := newBusinessFixture()
	b, err := svc.CreateBusiness(context.Background(), "Acme Corp", "https://acme.example")
	require.NoError(t, err)

	updated, err := svc.UpdateBusiness(context.Background(), b.ID, "Acme Inc", "")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", updated.Name)
	assert.Equal(t, "https://acme.example", updated.Website)
}

func TestIssueAndValidateAPIKey(t *testing.T) {
	svc, _, _ := newBusinessFixture()
	b, err := svc.CreateBusiness(context.Background(), "Acme Corp", "")
	require.NoError(t, err)

	raw, key, err := svc.IssueAPIKey(context.Background(), b.ID, "widget")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "cvf_"))
	assert.NotEqual(t, raw, key.KeyHash)

	businessID, err := svc.ValidateAPIKey(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, b.ID, businessID)
}

func TestIssueAPIKey_UnknownBusiness(t *testing.T) {
	svc, _, _ := newBusinessFixture()

	_, _, err := svc.IssueAPIKey(context.Background(), "biz-missing", "widget")
	assert.ErrorIs(t, err, domain.ErrBusinessNotFound)
}

func TestValidateAPIKey_Unknown(t *testing.T) {
	svc, _, _ := newBusinessFixture()

	_, err := svc.ValidateAPIKey(context.Background(), "cvf_deadbeef")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)

	_, err = svc.ValidateAPIKey(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestValidateAPIKey_Revoked(t *testing.T) {
	svc, _, _ := newBusinessFixture()
	b, err := svc.CreateBusiness(context.Background(), "Acme Corp", "")
	require.NoError(t, err)
	raw, key, err := svc.IssueAPIKey(context.Background(), b.ID, "widget")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAPIKey(context.Background(), b.ID, key.ID))

	_, err = svc.ValidateAPIKey(context.Background(), raw)
	assert.ErrorIs(t, err, domain.ErrAPIKeyRevoked)
}
