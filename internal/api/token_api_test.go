package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upsert(ctx context.Context, token string, deviceInfo, metadata map[string]any) (*push.TokenRecord, error) {
	args := m.Called(ctx, token, deviceInfo, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.TokenRecord), args.Error(1)
}

func (m *MockStore) List(ctx context.Context) ([]*push.TokenRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*push.TokenRecord), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, id string) (*push.TokenRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.TokenRecord), args.Error(1)
}

func (m *MockStore) GetByToken(ctx context.Context, token string) (*push.TokenRecord, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.TokenRecord), args.Error(1)
}

func (m *MockStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeleteByToken(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) TouchByToken(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func validToken() string {
	return strings.Repeat("f", 140)
}

func TestListTokens(t *testing.T) {
	mockStore := new(MockStore)
	tokenAPI := api.NewTokenAPI(mockStore, newTestLogger())

	mockStore.On("List", mock.Anything).Return([]*push.TokenRecord{
		{ID: "id-1", Token: validToken()},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/tokens", nil)
	rec := httptest.NewRecorder()
	tokenAPI.ListTokens(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])

	tokens := body["tokens"].([]any)
	first := tokens[0].(map[string]any)
	// List responses never expose the full token string.
	assert.Equal(t, strings.Repeat("f", 20)+"...", first["token"])
}

func TestGetToken(t *testing.T) {
	t.Run("Found returns the full token", func(t *testing.T) {
		mockStore := new(MockStore)
		tokenAPI := api.NewTokenAPI(mockStore, newTestLogger())

		full := validToken()
		mockStore.On("GetByID", mock.Anything, "id-1").Return(&push.TokenRecord{ID: "id-1", Token: full}, nil)

		req := httptest.NewRequest(http.MethodGet, "/tokens/id-1", nil)
		req.SetPathValue("id", "id-1")
		rec := httptest.NewRecorder()
		tokenAPI.GetToken(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		token := body["token"].(map[string]any)
		assert.Equal(t, full, token["token"])
	})

	t.Run("Missing is 404", func(t *testing.T) {
		mockStore := new(MockStore)
		tokenAPI := api.NewTokenAPI(mockStore, newTestLogger())

		mockStore.On("GetByID", mock.Anything, "nope").Return(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/tokens/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		tokenAPI.GetToken(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
	})
}

func TestRegisterToken(t *testing.T) {
	post := func(tokenAPI *api.TokenAPI, payload any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/tokens", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		tokenAPI.RegisterToken(rec, req)
		return rec
	}

	t.Run("Valid token is stored trimmed", func(t *testing.T) {
		mockStore := new(MockStore)
		tokenAPI := api.NewTokenAPI(mockStore, newTestLogger())

		token := validToken()
		stored := &push.TokenRecord{ID: "id-1", Token: token}
		mockStore.On("Upsert", mock.Anything, token, mock.Anything, mock.Anything).Return(stored, nil)

		rec := post(tokenAPI, map[string]any{
			"token":      "  " + token + "  ",
			"deviceInfo": map[string]any{"platform": "android"},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		respToken := body["token"].(map[string]any)
		assert.Equal(t, "id-1", respToken["id"])
		assert.NotEqual(t, token, respToken["token"])
		mockStore.AssertExpectations(t)
	})

	t.Run("Missing token is rejected", func(t *testing.T) {
		tokenAPI := api.NewTokenAPI(new(MockStore), newTestLogger())
		rec := post(tokenAPI, map[string]any{"deviceInfo": map[string]any{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Short token is rejected", func(t *testing.T) {
		tokenAPI := api.NewTokenAPI(new(MockStore), newTestLogger())
		rec := post(tokenAPI, map[string]any{"token": "too-short"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Oversized token is rejected", func(t *testing.T) {
		tokenAPI := api.NewTokenAPI(new(MockStore), newTestLogger())
		rec := post(tokenAPI, map[string]any{"token": strings.Repeat("x", 250)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Malformed json is rejected", func(t *testing.T) {
		tokenAPI := api.NewTokenAPI(new(MockStore), newTestLogger())
		req := httptest.NewRequest(http.MethodPost, "/tokens", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		tokenAPI.RegisterToken(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteToken(t *testing.T) {
	t.Run("Deleted", func(t *testing.T) {
		mockStore := new(MockStore)
		tokenAPI := api.NewTokenAPI(mockStore, newTestLogger())

		mockStore.On("DeleteByID", mock.Anything, "id-1").Return(true, nil)

		req := httptest.NewRequest(http.MethodDelete, "/tokens/id-1", nil)
		req.SetPathValue("id", "id-1")
		rec := httptest.NewRecorder()
		tokenAPI.DeleteToken(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Unknown id is 404", func(t *testing.T) {
		mockStore := new(MockStore)
		tokenAPI := api.NewTokenAPI(mockStore, newTestLogger())

		mockStore.On("DeleteByID", mock.Anything, "nope").Return(false, nil)

		req := httptest.NewRequest(http.MethodDelete, "/tokens/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		tokenAPI.DeleteToken(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
