package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/service"
)

type MockAttachmentService struct {
	mock.Mock
}

func (m *MockAttachmentService) Upload(ctx context.Context, r io.Reader, in service.UploadInput) (*model.Attachment, error) {
	args := m.Called(ctx, r, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}

func (m *MockAttachmentService) DownloadURL(ctx context.Context, downloadID string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, downloadID, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockAttachmentService) TrackedDownload(ctx context.Context, downloadID, clientIP, userAgent string) (string, error) {
	args := m.Called(ctx, downloadID, clientIP, userAgent)
	return args.String(0), args.Error(1)
}

func (m *MockAttachmentService) TrackOpen(ctx context.Context, messageID, clientIP string) error {
	args := m.Called(ctx, messageID, clientIP)
	return args.Error(0)
}

func (m *MockAttachmentService) Delete(ctx context.Context, storageKey string) error {
	args := m.Called(ctx, storageKey)
	return args.Error(0)
}
