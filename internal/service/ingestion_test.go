package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var helloWorld = strings.Repeat("Hello World. ", 200)

func newTestDocument(id string, docType domain.DocumentType, status domain.ProcessingStatus) *domain.Document {
	source := "documents/" + id + "/file"
	if docType.IsLink() {
		source = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	}
	d := domain.NewDocument(id, docType, source, "application/octet-stream", testNow)
	d.ProcessingStatus = status
	return d
}

func failedDocument(id string, docType domain.DocumentType, message string) *domain.Document {
	d := newTestDocument(id, docType, domain.StatusFailed)
	d.ProcessingError = &message
	return d
}

type ingestFixture struct {
	docs     *memoryDocuments
	blobs    *MockBlobStore
	embedder *fakeEmbedder
	vectors  *VectorStore
	svc      *IngestionService
}

func newIngestFixture(t *testing.T, repo VectorRepositoryInterface, extractor ContentExtractor, docs ...*domain.Document) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		docs:     newMemoryDocuments(docs...),
		blobs:    new(MockBlobStore),
		embedder: &fakeEmbedder{},
		vectors:  NewVectorStoreWithPolicy(repo, noSleepPolicy()),
	}
	f.svc = NewIngestionService(f.docs, f.blobs, extractor, f.embedder, f.vectors, nil, IngestionConfig{Retry: noSleepPolicy()})
	return f
}

func pdfExtractor(pages ...string) *extract.Extractor {
	return extract.New(nil, extract.WithPDFParser(stubPDF{pages: pages}))
}

func TestIngest_HelloWorldEndToEnd(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	vectors := newMemoryVectors()
	f := newIngestFixture(t, vectors, pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF-1.4"), nil)

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	assert.Nil(t, got.ProcessingError)
	require.NotNil(t, got.IndexedChunkCount)
	assert.GreaterOrEqual(t, *got.IndexedChunkCount, 2)
	assert.Equal(t, *got.IndexedChunkCount, vectors.count("doc-1"))
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, strings.TrimSpace(helloWorld), *got.ExtractedText)
	assert.Equal(t, []domain.ProcessingStatus{
		domain.StatusIdle,
		domain.StatusProcessing,
		domain.StatusCompleted,
	}, f.docs.statuses("doc-1"))

	chat := new(MockChatModel)
	chat.On("Complete", mock.Anything, mock.MatchedBy(func(p domain.ChatPrompt) bool {
		return p.Grounding.Kind == domain.GroundingRetrieved && strings.Contains(p.Grounding.Text, "Hello World")
	})).Return("The document repeats Hello World.", nil)

	conv := NewConversationService(f.docs, f.svc, NewRetrievalService(f.embedder, f.vectors), f.blobs, chat, true)

	grounding := conv.BuildContext(ctx, "doc-1", "What does the document say?")
	assert.Equal(t, domain.GroundingRetrieved, grounding.Kind)
	assert.Contains(t, grounding.Text, "Hello World")

	reply, err := conv.Reply(ctx, "doc-1", nil, "What does the document say?")
	require.NoError(t, err)
	assert.Contains(t, reply, "Hello World")
	chat.AssertExpectations(t)
}

func TestIngest_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	vectors := newMemoryVectors()
	f := newIngestFixture(t, vectors, pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil).Once()

	first, err := f.svc.Ingest(ctx, "doc-1")
	require.NoError(t, err)
	stored := vectors.count("doc-1")

	second, err := f.svc.Ingest(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, first.ProcessingStatus)
	assert.Equal(t, domain.StatusCompleted, second.ProcessingStatus)
	assert.Equal(t, stored, vectors.count("doc-1"))
	assert.Equal(t, 1, vectors.replaces)
	assert.Equal(t, 1, f.embedder.batchCalls)
	f.blobs.AssertNumberOfCalls(t, "Download", 1)
}

func TestIngest_ReconcilesWhenVectorsAlreadyStored(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	vectors := newMemoryVectors()
	require.NoError(t, vectors.ReplaceNamespace(ctx, "doc-1", []domain.EmbeddedChunk{
		{Chunk: domain.Chunk{Text: "left over", DocumentID: "doc-1"}, Embedding: []float32{1, 0, 0}},
	}))
	f := newIngestFixture(t, vectors, pdfExtractor(helloWorld), doc)

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	assert.Equal(t, []domain.ProcessingStatus{domain.StatusIdle, domain.StatusCompleted}, f.docs.statuses("doc-1"))
	assert.Equal(t, 1, vectors.count("doc-1"))
	f.blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestIngest_UpsertSucceedsOnThirdAttempt(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	repo := new(MockVectorRepository)
	repo.On("HasVectors", mock.Anything, "doc-1").Return(false, nil)
	repo.On("ReplaceNamespace", mock.Anything, "doc-1", mock.Anything).Return(errors.New("connection reset by peer")).Twice()
	repo.On("ReplaceNamespace", mock.Anything, "doc-1", mock.Anything).Return(nil).Once()

	f := newIngestFixture(t, repo, pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	repo.AssertNumberOfCalls(t, "ReplaceNamespace", 3)
	assert.Equal(t, 1, f.embedder.batchCalls)
}

func TestIngest_UpsertFailsAfterExactlyThreeAttempts(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	repo := new(MockVectorRepository)
	repo.On("HasVectors", mock.Anything, "doc-1").Return(false, nil)
	repo.On("ReplaceNamespace", mock.Anything, "doc-1", mock.Anything).Return(errors.New("connection refused")).Times(4)
	repo.On("ReplaceNamespace", mock.Anything, "doc-1", mock.Anything).Return(nil)

	f := newIngestFixture(t, repo, pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeIngestionFailed, domain.ErrorCode(err))
	assert.Equal(t, domain.StatusFailed, got.ProcessingStatus)
	assert.Contains(t, got.ErrorMessage(), "connection refused")
	assert.Nil(t, got.IndexedChunkCount)
	repo.AssertNumberOfCalls(t, "ReplaceNamespace", 3)
	assert.Equal(t, []domain.ProcessingStatus{
		domain.StatusIdle,
		domain.StatusProcessing,
		domain.StatusFailed,
	}, f.docs.statuses("doc-1"))
}

func TestIngest_FailedDocumentReturnsStoredError(t *testing.T) {
	ctx := context.Background()
	doc := failedDocument("doc-1", domain.DocumentTypePDF, "This PDF appears to be empty or scanned.")
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(helloWorld), doc)

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.Error(t, err)
	assert.Equal(t, "This PDF appears to be empty or scanned.", domain.UserMessage(err))
	assert.Equal(t, domain.StatusFailed, got.ProcessingStatus)
	assert.Equal(t, []domain.ProcessingStatus{domain.StatusFailed}, f.docs.statuses("doc-1"))
	f.blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestIngest_FailureMessagesAreSpecific(t *testing.T) {
	ctx := context.Background()
	corruptWord := func(io.Reader) (string, error) { return "", errors.New("zip: not a valid zip file") }
	extractor := extract.New(nil,
		extract.WithPDFParser(stubPDF{pages: []string{"", "  "}}),
		extract.WithWordConverter(corruptWord),
	)

	pdf := newTestDocument("pdf-1", domain.DocumentTypePDF, domain.StatusIdle)
	word := newTestDocument("doc-1", domain.DocumentTypeDoc, domain.StatusIdle)
	f := newIngestFixture(t, newMemoryVectors(), extractor, pdf, word)
	f.blobs.On("Download", mock.Anything, pdf.SourceLocation).Return([]byte("%PDF-1.4"), nil)
	f.blobs.On("Download", mock.Anything, word.SourceLocation).Return([]byte{0x50, 0x4b, 0x00, 0x01}, nil)

	gotPDF, err := f.svc.Ingest(ctx, "pdf-1")
	require.Error(t, err)
	gotWord, err := f.svc.Ingest(ctx, "doc-1")
	require.Error(t, err)

	assert.Equal(t, domain.StatusFailed, gotPDF.ProcessingStatus)
	assert.Equal(t, domain.StatusFailed, gotWord.ProcessingStatus)
	assert.Equal(t, domain.ErrEmptyPDF.Message, gotPDF.ErrorMessage())
	assert.Equal(t, domain.ErrUnreadableWord.Message, gotWord.ErrorMessage())
	assert.NotEqual(t, gotPDF.ErrorMessage(), gotWord.ErrorMessage())
	f.blobs.AssertNumberOfCalls(t, "Download", 2)
}

func TestIngest_EmptyYouTubeTranscript(t *testing.T) {
	ctx := context.Background()
	fetcher := new(MockTranscriptFetcher)
	fetcher.On("FetchTranscript", mock.Anything, "dQw4w9WgXcQ").Return(nil, errors.New("captions disabled"))

	doc := newTestDocument("vid-1", domain.DocumentTypeYouTube, domain.StatusIdle)
	f := newIngestFixture(t, newMemoryVectors(), extract.New(fetcher), doc)

	got, err := f.svc.Ingest(ctx, "vid-1")

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, got.ProcessingStatus)
	assert.Contains(t, got.ErrorMessage(), "transcript")
	fetcher.AssertNumberOfCalls(t, "FetchTranscript", 1)

	chat := new(MockChatModel)
	conv := NewConversationService(f.docs, f.svc, NewRetrievalService(f.embedder, f.vectors), f.blobs, chat, true)
	reply, err := conv.Reply(ctx, "vid-1", nil, "What is this video about?")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, domain.VideoErrorPrefix))
	assert.Equal(t, domain.VideoErrorPrefix+got.ErrorMessage(), reply)
	chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestIngest_TransientFetchIsRetried(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).
		Return(nil, domain.Transient(domain.ErrStorageFailure.Message, errors.New("503 slow down"))).Once()
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil).Once()

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	f.blobs.AssertNumberOfCalls(t, "Download", 2)
}

func TestIngest_ValidationFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return(nil, domain.ErrBlobNotFound)

	got, err := f.svc.Ingest(ctx, "doc-1")

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, got.ProcessingStatus)
	assert.Equal(t, domain.ErrBlobNotFound.Message, got.ErrorMessage())
	f.blobs.AssertNumberOfCalls(t, "Download", 1)
}

func TestIngest_EmbeddingRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	embedder := new(MockEmbedder)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, domain.Transient(domain.ErrEmbeddingService.Message, errors.New("429 rate limited")))

	docs := newMemoryDocuments(doc)
	blobs := new(MockBlobStore)
	blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)
	vectors := newMemoryVectors()
	svc := NewIngestionService(docs, blobs, pdfExtractor(helloWorld), embedder,
		NewVectorStoreWithPolicy(vectors, noSleepPolicy()), nil, IngestionConfig{Retry: noSleepPolicy()})

	got, err := svc.Ingest(ctx, "doc-1")

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, got.ProcessingStatus)
	assert.Equal(t, "embedding service error: 429 rate limited", got.ErrorMessage())
	embedder.AssertNumberOfCalls(t, "EmbedBatch", 3)
	assert.Zero(t, vectors.replaces)
}

func TestIngest_MissingCredentialsFailFast(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	embedder := new(MockEmbedder)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, domain.ErrMissingCredentials)

	docs := newMemoryDocuments(doc)
	blobs := new(MockBlobStore)
	blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)
	svc := NewIngestionService(docs, blobs, pdfExtractor(helloWorld), embedder,
		NewVectorStoreWithPolicy(newMemoryVectors(), noSleepPolicy()), nil, IngestionConfig{Retry: noSleepPolicy()})

	got, err := svc.Ingest(ctx, "doc-1")

	require.Error(t, err)
	assert.Equal(t, domain.ErrMissingCredentials.Message, got.ErrorMessage())
	embedder.AssertNumberOfCalls(t, "EmbedBatch", 1)
}

func TestIngest_UnsupportedTypeFails(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("img-1", domain.DocumentTypeImage, domain.StatusIdle)
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(), doc)

	got, err := f.svc.Ingest(ctx, "img-1")

	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, got.ProcessingStatus)
	assert.Equal(t, domain.ErrUnsupportedType.Message, got.ErrorMessage())
	f.blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestIngest_NotFound(t *testing.T) {
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor())

	got, err := f.svc.Ingest(context.Background(), "missing")

	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestIngest_ProcessingDocumentIsLeftAlone(t *testing.T) {
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusProcessing)
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(helloWorld), doc)

	got, err := f.svc.Ingest(context.Background(), "doc-1")

	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
	assert.Equal(t, domain.StatusProcessing, got.ProcessingStatus)
	f.blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestIngest_LockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	docs := newMemoryDocuments(doc)
	blobs := new(MockBlobStore)
	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, "doc-1").Return(nil, lock.ErrNotAcquired)

	svc := NewIngestionService(docs, blobs, pdfExtractor(helloWorld), &fakeEmbedder{},
		NewVectorStoreWithPolicy(newMemoryVectors(), noSleepPolicy()), locker, IngestionConfig{Retry: noSleepPolicy()})

	got, err := svc.Ingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, got.ProcessingStatus)
	assert.Equal(t, []domain.ProcessingStatus{domain.StatusIdle}, docs.statuses("doc-1"))
	blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestIngest_ReleasesLock(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	blobs := new(MockBlobStore)
	blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)

	released := 0
	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, "doc-1").Return(lock.Unlock(func(context.Context) error {
		released++
		return nil
	}), nil)

	svc := NewIngestionService(newMemoryDocuments(doc), blobs, pdfExtractor(helloWorld), &fakeEmbedder{},
		NewVectorStoreWithPolicy(newMemoryVectors(), noSleepPolicy()), locker, IngestionConfig{Retry: noSleepPolicy()})

	_, err := svc.Ingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestIngest_ConcurrentCallsShareOneRun(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	vectors := newMemoryVectors()
	f := newIngestFixture(t, vectors, pdfExtractor(helloWorld), doc)

	gate := make(chan struct{})
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).
		Run(func(mock.Arguments) { <-gate }).Return([]byte("%PDF"), nil)

	var wg sync.WaitGroup
	results := make([]*domain.Document, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.svc.Ingest(ctx, "doc-1")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, domain.StatusCompleted, r.ProcessingStatus)
	}
	assert.Equal(t, 1, vectors.replaces)
}

// cancelOnReplace cancels the ingesting caller once the upsert starts and
// records whether the upsert itself saw a cancelled context.
type cancelOnReplace struct {
	*memoryVectors
	cancel   context.CancelFunc
	mu       sync.Mutex
	ctxErrAt error
}

func (c *cancelOnReplace) ReplaceNamespace(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	c.cancel()
	c.mu.Lock()
	c.ctxErrAt = ctx.Err()
	c.mu.Unlock()
	return c.memoryVectors.ReplaceNamespace(ctx, namespace, chunks)
}

func TestIngest_CallerCancelMidUpsertDoesNotFailDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusIdle)
	repo := &cancelOnReplace{memoryVectors: newMemoryVectors(), cancel: cancel}
	f := newIngestFixture(t, repo, pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)

	_, err := f.svc.Ingest(ctx, "doc-1")
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}

	require.Eventually(t, func() bool {
		got, err := f.docs.GetByID(context.Background(), "doc-1")
		return err == nil && got.ProcessingStatus == domain.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	repo.mu.Lock()
	assert.NoError(t, repo.ctxErrAt)
	repo.mu.Unlock()
	assert.NotContains(t, f.docs.statuses("doc-1"), domain.StatusFailed)

	conv := NewConversationService(f.docs, f.svc, NewRetrievalService(f.embedder, f.vectors), f.blobs, nil, false)
	grounding := conv.BuildContext(context.Background(), "doc-1", "What does the document say?")
	assert.False(t, grounding.IsError())
}

func TestReingest_FailedDocument(t *testing.T) {
	ctx := context.Background()
	doc := failedDocument("doc-1", domain.DocumentTypePDF, "vector store error: timeout")
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(helloWorld), doc)
	f.blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)

	got, err := f.svc.Reingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	assert.Nil(t, got.ProcessingError)
	assert.Equal(t, []domain.ProcessingStatus{
		domain.StatusFailed,
		domain.StatusProcessing,
		domain.StatusCompleted,
	}, f.docs.statuses("doc-1"))
}

func TestReingest_CompletedDocumentShortCircuits(t *testing.T) {
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusCompleted)
	count := 3
	doc.IndexedChunkCount = &count
	f := newIngestFixture(t, newMemoryVectors(), pdfExtractor(helloWorld), doc)

	got, err := f.svc.Reingest(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	f.blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestReingest_StaleProcessingIsTakenOver(t *testing.T) {
	ctx := context.Background()
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusProcessing)
	doc.UpdatedAt = testNow.Add(-time.Hour)

	docs := newMemoryDocuments(doc)
	blobs := new(MockBlobStore)
	blobs.On("Download", mock.Anything, doc.SourceLocation).Return([]byte("%PDF"), nil)
	svc := NewIngestionService(docs, blobs, pdfExtractor(helloWorld), &fakeEmbedder{},
		NewVectorStoreWithPolicy(newMemoryVectors(), noSleepPolicy()), nil,
		IngestionConfig{Retry: noSleepPolicy(), StaleAfter: 15 * time.Minute})
	svc.now = func() time.Time { return testNow }

	got, err := svc.Reingest(ctx, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	assert.Equal(t, []domain.ProcessingStatus{
		domain.StatusProcessing,
		domain.StatusFailed,
		domain.StatusProcessing,
		domain.StatusCompleted,
	}, docs.statuses("doc-1"))
}

func TestReingest_FreshProcessingIsRejected(t *testing.T) {
	doc := newTestDocument("doc-1", domain.DocumentTypePDF, domain.StatusProcessing)
	doc.UpdatedAt = testNow.Add(-time.Minute)

	docs := newMemoryDocuments(doc)
	blobs := new(MockBlobStore)
	svc := NewIngestionService(docs, blobs, pdfExtractor(helloWorld), &fakeEmbedder{},
		NewVectorStoreWithPolicy(newMemoryVectors(), noSleepPolicy()), nil,
		IngestionConfig{Retry: noSleepPolicy(), StaleAfter: 15 * time.Minute})
	svc.now = func() time.Time { return testNow }

	_, err := svc.Reingest(context.Background(), "doc-1")

	assert.ErrorIs(t, err, domain.ErrIngestionInProgress)
	blobs.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestNewIngestionService_Defaults(t *testing.T) {
	svc := NewIngestionService(newMemoryDocuments(), nil, pdfExtractor(), &fakeEmbedder{}, nil, nil, IngestionConfig{})

	assert.Equal(t, DefaultChunkConfig(), svc.cfg.Chunk)
	assert.Equal(t, MaxRetries, svc.policy.Attempts)
	assert.Equal(t, RetryDelay, svc.policy.Delay)
	assert.Equal(t, CallTimeout, svc.policy.Timeout)
	assert.IsType(t, lock.Noop{}, svc.locker)
}
