package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
)

type MockAttachmentRepository struct {
	mock.Mock
}

func (m *MockAttachmentRepository) Create(ctx context.Context, att *model.Attachment) (*model.Attachment, error) {
	args := m.Called(ctx, att)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) FindByStorageKey(ctx context.Context, key string) (*model.Attachment, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) FindByDownloadID(ctx context.Context, downloadID string) (*model.Attachment, error) {
	args := m.Called(ctx, downloadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) FindByStorageKeys(ctx context.Context, keys []string) (map[string]model.Attachment, error) {
	args := m.Called(ctx, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) MarkDownloaded(ctx context.Context, downloadID string, at time.Time) error {
	args := m.Called(ctx, downloadID, at)
	return args.Error(0)
}

func (m *MockAttachmentRepository) FindOrphans(ctx context.Context, olderThan time.Time, limit int) ([]model.Attachment, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) DeleteByStorageKey(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAttachmentRepository) Analytics(ctx context.Context, wastedBefore time.Time, topN int) (*model.StorageAnalytics, error) {
	args := m.Called(ctx, wastedBefore, topN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StorageAnalytics), args.Error(1)
}
