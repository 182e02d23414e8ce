package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRowStore struct {
	mock.Mock
}

func (m *MockRowStore) FetchAll(ctx context.Context, table string) ([]map[string]any, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockRowStore) Upsert(ctx context.Context, table string, rows []map[string]any, conflictKey string) error {
	args := m.Called(ctx, table, rows, conflictKey)
	return args.Error(0)
}
