package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hasnin090/iq-sub003/internal/model"
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) List(ctx context.Context) ([]model.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListWithoutFile(ctx context.Context) ([]model.Transaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) UpdateFile(ctx context.Context, id int64, fileURL, fileType string) error {
	args := m.Called(ctx, id, fileURL, fileType)
	return args.Error(0)
}

func (m *MockTransactionRepository) ClearFile(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
