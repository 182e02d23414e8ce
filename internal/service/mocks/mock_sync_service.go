package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hasnin090/iq-sub003/internal/model"
)

type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) MigrateToRemote(ctx context.Context) model.MigrationResult {
	args := m.Called(ctx)
	return args.Get(0).(model.MigrationResult)
}

func (m *MockSyncService) Migrate(ctx context.Context) (model.MigrationResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.MigrationResult), args.Error(1)
}

func (m *MockSyncService) RunSync(ctx context.Context) (model.SyncProgressReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.SyncProgressReport), args.Error(1)
}

func (m *MockSyncService) StartSync(ctx context.Context) (model.SyncProgressReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.SyncProgressReport), args.Error(1)
}

func (m *MockSyncService) SyncAllData(ctx context.Context) model.SyncProgressReport {
	args := m.Called(ctx)
	return args.Get(0).(model.SyncProgressReport)
}

func (m *MockSyncService) Progress() model.SyncProgressReport {
	args := m.Called()
	return args.Get(0).(model.SyncProgressReport)
}

func (m *MockSyncService) FixOrphanedAttachments(ctx context.Context) model.FixAttachmentsResult {
	args := m.Called(ctx)
	return args.Get(0).(model.FixAttachmentsResult)
}

func (m *MockSyncService) GetAttachmentStatus(ctx context.Context) model.AttachmentStatus {
	args := m.Called(ctx)
	return args.Get(0).(model.AttachmentStatus)
}
