package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, draft models.PendingMessage) (models.Message, error) {
	args := m.Called(ctx, draft)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, afterID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Watch(ctx context.Context, roomID string, afterID int64) (repositories.Watcher, error) {
	args := m.Called(ctx, roomID, afterID)
	var w repositories.Watcher
	if val := args.Get(0); val != nil {
		w = val.(repositories.Watcher)
	}
	return w, args.Error(1)
}

type BlobRepositoryMock struct {
	mock.Mock
}

func (m *BlobRepositoryMock) Put(ctx context.Context, key string, data []byte, contentType string) error {
	args := m.Called(ctx, key, data, contentType)
	return args.Error(0)
}

func (m *BlobRepositoryMock) Get(ctx context.Context, key string) (models.Blob, error) {
	args := m.Called(ctx, key)
	var blob models.Blob
	if val := args.Get(0); val != nil {
		blob = val.(models.Blob)
	}
	return blob, args.Error(1)
}

type ConfigRepositoryMock struct {
	mock.Mock
}

func (m *ConfigRepositoryMock) GetValue(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *ConfigRepositoryMock) SetValue(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, payload []byte, suggestedName string) (string, error) {
	args := m.Called(ctx, payload, suggestedName)
	return args.String(0), args.Error(1)
}

type LimitSourceMock struct {
	mock.Mock
}

func (m *LimitSourceMock) MessageLengthLimit(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.BlobRepository = (*BlobRepositoryMock)(nil)
var _ repositories.ConfigRepository = (*ConfigRepositoryMock)(nil)
var _ interface {
	Upload(context.Context, []byte, string) (string, error)
} = (*UploaderMock)(nil)
