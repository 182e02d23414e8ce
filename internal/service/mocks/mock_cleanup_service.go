package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hasnin090/iq-sub003/internal/model"
)

type MockCleanupService struct {
	mock.Mock
}

func (m *MockCleanupService) CleanupDatabase(ctx context.Context) model.CleanupResult {
	args := m.Called(ctx)
	return args.Get(0).(model.CleanupResult)
}

func (m *MockCleanupService) OrganizeExistingFiles(ctx context.Context) model.OrganizeResult {
	args := m.Called(ctx)
	return args.Get(0).(model.OrganizeResult)
}

func (m *MockCleanupService) GetSystemStatus(ctx context.Context) model.SystemStatus {
	args := m.Called(ctx)
	return args.Get(0).(model.SystemStatus)
}
