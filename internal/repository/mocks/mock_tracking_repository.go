package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
)

type MockTrackingRepository struct {
	mock.Mock
}

func (m *MockTrackingRepository) RecordDownload(ctx context.Context, ev *model.DownloadEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockTrackingRepository) RecordOpen(ctx context.Context, ev *model.OpenEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockTrackingRepository) DeleteDownloadEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTrackingRepository) DeleteOpenEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockCleanupRunRepository struct {
	mock.Mock
}

func (m *MockCleanupRunRepository) Create(ctx context.Context, run *model.CleanupRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockCleanupRunRepository) ListSince(ctx context.Context, since time.Time) ([]model.CleanupRun, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CleanupRun), args.Error(1)
}
