package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/hasnin090/iq-sub003/internal/storage"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) EnsureBucket(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

func (m *MockStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, opt storage.PutObjectOptions) (string, bool) {
	args := m.Called(ctx, bucket, key, r, opt)
	return args.String(0), args.Bool(1)
}

func (m *MockStorage) PublicURL(bucket, key string) string {
	args := m.Called(bucket, key)
	return args.String(0)
}

func (m *MockStorage) IsProviderURL(u string) bool {
	args := m.Called(u)
	return args.Bool(0)
}
