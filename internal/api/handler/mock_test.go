package handler

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/backuprelay/internal/dbhttp"
)

// ---------- Mock DB ----------

// mockDB implements the core.DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Execute(ctx context.Context, sql string, params ...any) ([]dbhttp.Row, error) {
	args := m.Called(ctx, sql, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]dbhttp.Row), args.Error(1)
}

// ---------- Mock ObjectStore ----------

// mockStore implements the core.ObjectStore interface for testing.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *mockStore) Get(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, "", 0, args.Error(3)
	}
	return args.Get(0).(io.ReadCloser), args.String(1), args.Get(2).(int64), args.Error(3)
}

func (m *mockStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockStore) DeleteMany(ctx context.Context, keys []string) (int, error) {
	args := m.Called(ctx, keys)
	return args.Int(0), args.Error(1)
}

func storeBody(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
