package dispatch_test

import (
	"context"
	"io"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/mock"

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

type MockFCM struct {
	mock.Mock
}

func (m *MockFCM) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockFCM) SendMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*push.MulticastReceipt, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.MulticastReceipt), args.Error(1)
}

type MockPlatformBroadcaster struct {
	mock.Mock
}

func (m *MockPlatformBroadcaster) Broadcast(ctx context.Context, tokens []string, title, body string, data map[string]string) (*push.MulticastReceipt, error) {
	args := m.Called(ctx, tokens, title, body, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.MulticastReceipt), args.Error(1)
}

type MockWebBroadcaster struct {
	mock.Mock
}

func (m *MockWebBroadcaster) Broadcast(ctx context.Context, records []*push.TokenRecord, title, body string, data map[string]string) (*push.MulticastReceipt, error) {
	args := m.Called(ctx, records, title, body, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.MulticastReceipt), args.Error(1)
}
