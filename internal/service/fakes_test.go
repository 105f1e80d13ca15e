package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/lock"
	"github.com/cloo-solutions/docchat/internal/pagination"
	"github.com/cloo-solutions/docchat/internal/queue"
	"github.com/cloo-solutions/docchat/internal/retry"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// noSleepPolicy is the production budget without the waits.
func noSleepPolicy() retry.Policy {
	return retry.Policy{Attempts: MaxRetries, Delay: RetryDelay, Sleep: retry.NoSleep}
}

// memoryDocuments behaves like DocumentRepository, including the conditional
// status write, and records every status a document passes through.
type memoryDocuments struct {
	mu      sync.Mutex
	docs    map[string]*domain.Document
	history map[string][]domain.ProcessingStatus
	now     time.Time
}

func newMemoryDocuments(docs ...*domain.Document) *memoryDocuments {
	m := &memoryDocuments{
		docs:    make(map[string]*domain.Document),
		history: make(map[string][]domain.ProcessingStatus),
		now:     testNow,
	}
	for _, d := range docs {
		m.put(d)
	}
	return m
}

func (m *memoryDocuments) put(d *domain.Document) {
	cp := *d
	m.docs[d.ID] = &cp
	m.history[d.ID] = append(m.history[d.ID], d.ProcessingStatus)
}

func (m *memoryDocuments) Create(ctx context.Context, d *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(d)
	return nil
}

func (m *memoryDocuments) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDocuments) UpdateStatus(ctx context.Context, id string, from domain.ProcessingStatus, u domain.DocumentUpdate) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	if d.ProcessingStatus != from {
		return nil, domain.ErrStatusConflict
	}

	next := *d
	u.Apply(&next)
	next.UpdatedAt = m.now
	if err := domain.ValidateDocument(&next); err != nil {
		return nil, err
	}

	m.docs[id] = &next
	if next.ProcessingStatus != d.ProcessingStatus {
		m.history[id] = append(m.history[id], next.ProcessingStatus)
	}
	cp := next
	return &cp, nil
}

func (m *memoryDocuments) ListWithCursor(ctx context.Context, status *domain.ProcessingStatus, cursor *pagination.Cursor, limit int) ([]*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*domain.Document
	for _, d := range m.docs {
		if status != nil && d.ProcessingStatus != *status {
			continue
		}
		if cursor != nil {
			older := d.CreatedAt.Before(cursor.CreatedAt) ||
				(d.CreatedAt.Equal(cursor.CreatedAt) && d.ID < cursor.ID)
			if !older {
				continue
			}
		}
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memoryDocuments) statuses(id string) []domain.ProcessingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProcessingStatus(nil), m.history[id]...)
}

// memoryVectors is an in-memory VectorRepositoryInterface. Scores fall with
// chunk ordinal so results are deterministic.
type memoryVectors struct {
	mu       sync.Mutex
	chunks   map[string][]domain.EmbeddedChunk
	replaces int
}

func newMemoryVectors() *memoryVectors {
	return &memoryVectors{chunks: make(map[string][]domain.EmbeddedChunk)}
}

func (m *memoryVectors) HasVectors(ctx context.Context, namespace string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[namespace]) > 0, nil
}

func (m *memoryVectors) ReplaceNamespace(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	m.chunks[namespace] = append([]domain.EmbeddedChunk(nil), chunks...)
	return nil
}

func (m *memoryVectors) Nearest(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScoredPassage
	for _, c := range m.chunks[namespace] {
		out = append(out, domain.ScoredPassage{Text: c.Text, Score: 1 - float64(c.Ordinal)*0.01})
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memoryVectors) count(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[namespace])
}

// fakeEmbedder returns a fixed three-dimensional vector per text.
type fakeEmbedder struct {
	mu         sync.Mutex
	batchCalls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 1, 0}, nil
}

// stubPDF returns fixed page texts.
type stubPDF struct {
	pages []string
}

func (s stubPDF) Pages(data []byte) ([]string, error) {
	return s.pages, nil
}

// MockBlobStore is a mock implementation of BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockVectorRepository is a mock implementation of VectorRepositoryInterface
type MockVectorRepository struct {
	mock.Mock
}

func (m *MockVectorRepository) HasVectors(ctx context.Context, namespace string) (bool, error) {
	args := m.Called(ctx, namespace)
	return args.Bool(0), args.Error(1)
}

func (m *MockVectorRepository) ReplaceNamespace(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	args := m.Called(ctx, namespace, chunks)
	return args.Error(0)
}

func (m *MockVectorRepository) Nearest(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error) {
	args := m.Called(ctx, namespace, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredPassage), args.Error(1)
}

// MockChatModel is a mock implementation of ChatModel
type MockChatModel struct {
	mock.Mock
}

func (m *MockChatModel) Complete(ctx context.Context, prompt domain.ChatPrompt) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockLocker is a mock implementation of DocumentLocker
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (lock.Unlock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(lock.Unlock), args.Error(1)
}

// MockIngestQueue is a mock implementation of IngestQueue
type MockIngestQueue struct {
	mock.Mock
}

func (m *MockIngestQueue) Enqueue(ctx context.Context, msg queue.IngestMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockTranscriptFetcher is a mock implementation of extract.TranscriptFetcher
type MockTranscriptFetcher struct {
	mock.Mock
}

func (m *MockTranscriptFetcher) FetchTranscript(ctx context.Context, videoID string) ([]extract.TranscriptSegment, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]extract.TranscriptSegment), args.Error(1)
}
