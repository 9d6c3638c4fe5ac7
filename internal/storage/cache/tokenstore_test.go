package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/storage/cache"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// --- Mocks ---

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	if args.Error(0) == nil {
		if rec, ok := args.Get(1).(*push.TokenRecord); ok {
			*dest.(*push.TokenRecord) = *rec
		}
	}
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) Upsert(ctx context.Context, token string, deviceInfo, metadata map[string]any) (*push.TokenRecord, error) {
	args := m.Called(ctx, token, deviceInfo, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.TokenRecord), args.Error(1)
}

func (m *MockRealStore) List(ctx context.Context) ([]*push.TokenRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*push.TokenRecord), args.Error(1)
}

func (m *MockRealStore) GetByID(ctx context.Context, id string) (*push.TokenRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.TokenRecord), args.Error(1)
}

func (m *MockRealStore) GetByToken(ctx context.Context, token string) (*push.TokenRecord, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.TokenRecord), args.Error(1)
}

func (m *MockRealStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRealStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockRealStore) TouchByToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockRealStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- Tests ---

func TestCachedStore_ReadAside(t *testing.T) {
	ctx := context.Background()
	rec := &push.TokenRecord{ID: "id-1", Token: "token-1"}

	t.Run("Cache miss falls through and populates both keys", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, "push:tokens:id:id-1", mock.Anything).Return(assert.AnError, nil)
		mockDB.On("GetByID", ctx, "id-1").Return(rec, nil)
		mockCache.On("Set", ctx, "push:tokens:id:id-1", rec, mock.Anything).Return(nil)
		mockCache.On("Set", ctx, "push:tokens:token:token-1", rec, mock.Anything).Return(nil)

		got, err := store.GetByID(ctx, "id-1")
		require.NoError(t, err)
		assert.Equal(t, "token-1", got.Token)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache hit never touches the real store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, "push:tokens:token:token-1", mock.Anything).Return(nil, rec)

		got, err := store.GetByToken(ctx, "token-1")
		require.NoError(t, err)
		assert.Equal(t, "id-1", got.ID)
		mockDB.AssertNotCalled(t, "GetByToken", mock.Anything, mock.Anything)
	})

	t.Run("Absent record is not cached", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, "push:tokens:id:missing", mock.Anything).Return(assert.AnError, nil)
		mockDB.On("GetByID", ctx, "missing").Return(nil, nil)

		got, err := store.GetByID(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
		mockCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCachedStore_InvalidateOnWrite(t *testing.T) {
	ctx := context.Background()
	rec := &push.TokenRecord{ID: "id-1", Token: "token-1"}

	t.Run("Upsert invalidates both keys", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockDB.On("Upsert", ctx, "token-1", mock.Anything, mock.Anything).Return(rec, nil)
		mockCache.On("Del", ctx, []string{"push:tokens:id:id-1", "push:tokens:token:token-1"}).Return(nil)

		_, err := store.Upsert(ctx, "token-1", nil, nil)
		require.NoError(t, err)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Delete invalidates immediately even on cache errors", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockDB.On("GetByID", ctx, "id-1").Return(rec, nil)
		mockDB.On("DeleteByID", ctx, "id-1").Return(true, nil)
		mockCache.On("Del", ctx, []string{"push:tokens:id:id-1", "push:tokens:token:token-1"}).Return(assert.AnError)

		deleted, err := store.DeleteByID(ctx, "id-1")
		require.NoError(t, err)
		assert.True(t, deleted)
		mockCache.AssertExpectations(t)
	})
}
