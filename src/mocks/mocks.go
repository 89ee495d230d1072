package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/recall-ai/recall/src/models"
)

// MockEmbedder implements models.Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockUpstream implements models.UpstreamClient
type MockUpstream struct {
	mock.Mock
}

func (m *MockUpstream) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockRecorder implements models.AccessRecorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordAccess(ctx context.Context, entryID string, saving float64, tokens int) (float64, error) {
	args := m.Called(ctx, entryID, saving, tokens)
	return args.Get(0).(float64), args.Error(1)
}

// MockVectorIndex implements models.VectorIndex
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SearchResult), args.Error(1)
}

func (m *MockVectorIndex) Get(ctx context.Context, id string) (*models.CacheEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CacheEntry), args.Error(1)
}

func (m *MockVectorIndex) Insert(ctx context.Context, entry *models.CacheEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockVectorIndex) Update(ctx context.Context, entry *models.CacheEntry, expectedVersion int64) error {
	args := m.Called(ctx, entry, expectedVersion)
	return args.Error(0)
}

func (m *MockVectorIndex) BulkUpdate(ctx context.Context, entries []*models.CacheEntry) (int, error) {
	args := m.Called(ctx, entries)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorIndex) List(ctx context.Context, filter models.ListFilter) ([]*models.CacheEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CacheEntry), args.Error(1)
}

func (m *MockVectorIndex) Count(ctx context.Context, filter models.ListFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockVectorIndex) Close() error {
	args := m.Called()
	return args.Error(0)
}
