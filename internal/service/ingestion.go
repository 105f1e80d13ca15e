package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/lock"
	"github.com/cloo-solutions/docchat/internal/retry"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

// Ingestion retry budget for fetch and embed calls.
const (
	MaxRetries  = 3
	RetryDelay  = time.Second
	CallTimeout = 30 * time.Second
)

// DocumentRepositoryInterface is the document persistence used by ingestion.
type DocumentRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, from domain.ProcessingStatus, u domain.DocumentUpdate) (*domain.Document, error)
}

// BlobStore downloads uploaded files.
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// ContentExtractor turns blobs and video links into text.
type ContentExtractor interface {
	Extract(ctx context.Context, data []byte, docType domain.DocumentType) (string, error)
	ExtractTranscript(ctx context.Context, link string) (string, error)
}

// Embedder produces vectors for text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorGateway is the per-document vector namespace store.
type VectorGateway interface {
	NamespaceHasVectors(ctx context.Context, namespace string) bool
	Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error
	QueryTopK(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error)
}

// DocumentLocker serializes ingestion of one document across processes.
type DocumentLocker interface {
	Acquire(ctx context.Context, key string) (lock.Unlock, error)
}

// IngestionConfig tunes the orchestrator. Zero values fall back to the defaults.
type IngestionConfig struct {
	Chunk       ChunkConfig
	Retry       retry.Policy
	CallTimeout time.Duration
	// StaleAfter lets Reingest take over a processing run that has not been
	// touched for this long. Zero disables takeover.
	StaleAfter time.Duration
}

// DefaultIngestionConfig returns 1000/200 chunks, 3 attempts 1s apart and a 30s call timeout.
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		Chunk:       DefaultChunkConfig(),
		Retry:       retry.Policy{Attempts: MaxRetries, Delay: RetryDelay},
		CallTimeout: CallTimeout,
	}
}

// IngestionService drives a document from idle to completed or failed.
type IngestionService struct {
	docs      DocumentRepositoryInterface
	blobs     BlobStore
	extractor ContentExtractor
	embedder  Embedder
	vectors   VectorGateway
	locker    DocumentLocker

	cfg    IngestionConfig
	policy retry.Policy
	group  singleflight.Group
	now    func() time.Time
}

// NewIngestionService creates an IngestionService. locker may be nil.
func NewIngestionService(
	docs DocumentRepositoryInterface,
	blobs BlobStore,
	extractor ContentExtractor,
	embedder Embedder,
	vectors VectorGateway,
	locker DocumentLocker,
	cfg IngestionConfig,
) *IngestionService {
	defaults := DefaultIngestionConfig()
	if cfg.Chunk.Size <= 0 {
		cfg.Chunk = defaults.Chunk
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = defaults.Retry.Attempts
		cfg.Retry.Delay = defaults.Retry.Delay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if locker == nil {
		locker = lock.Noop{}
	}

	policy := cfg.Retry
	policy.Timeout = cfg.CallTimeout
	if policy.Retryable == nil {
		policy.Retryable = domain.IsRetryable
	}

	return &IngestionService{
		docs:      docs,
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		locker:    locker,
		cfg:       cfg,
		policy:    policy,
		now:       time.Now,
	}
}

// Ingest runs the pipeline for an idle document. Failed documents return their
// stored error without doing any work; completed documents and documents whose
// vectors already exist return immediately.
//
// The returned error is an INGESTION_FAILED domain error when the document ends
// up failed. Any other error means the document could not be loaded or a status
// write did not persist.
func (s *IngestionService) Ingest(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.do(ctx, "ingest:"+documentID, documentID, false)
}

// Reingest is the explicit user retry. It moves a failed document, or one whose
// processing run went stale, back through processing.
func (s *IngestionService) Reingest(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.do(ctx, "reingest:"+documentID, documentID, true)
}

// do runs the pipeline detached from the caller's cancellation; each external
// call is still bounded by the per-call timeout. A caller that goes away gets
// ctx.Err() while the shared run finishes and records its own outcome.
func (s *IngestionService) do(ctx context.Context, key, documentID string, force bool) (*domain.Document, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.run(runCtx, documentID, force)
	})

	select {
	case res := <-ch:
		doc, _ := res.Val.(*domain.Document)
		return doc, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *IngestionService) run(ctx context.Context, documentID string, force bool) (*domain.Document, error) {
	op := "ingest"
	if force {
		op = "reingest"
	}
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  op,
	})
	defer span.End()

	unlock, err := s.locker.Acquire(ctx, documentID)
	if errors.Is(err, lock.ErrNotAcquired) {
		log.Printf("ingest %s: another worker holds the lock", documentID)
		return s.docs.GetByID(ctx, documentID)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Printf("ingest %s: %v", documentID, err)
		}
	}()

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	switch doc.ProcessingStatus {
	case domain.StatusCompleted:
		return doc, nil
	case domain.StatusFailed:
		if !force {
			return doc, domain.IngestionFailed(doc.ErrorMessage())
		}
	case domain.StatusProcessing:
		if !force || !s.isStale(doc) {
			return doc, domain.ErrIngestionInProgress
		}
	}

	if s.vectors.NamespaceHasVectors(ctx, documentID) {
		return s.reconcile(ctx, doc)
	}

	if doc.ProcessingStatus == domain.StatusProcessing {
		doc, err = s.transition(ctx, doc, domain.FailProcessing(domain.ErrProcessingInterrupted.Message))
		if err != nil {
			return nil, err
		}
	}

	doc, err = s.transition(ctx, doc, domain.StartProcessing())
	if err != nil {
		return nil, err
	}

	count, text, stageErr := s.process(ctx, doc)

	// The terminal write must land even if the caller went away.
	writeCtx := context.WithoutCancel(ctx)
	if stageErr != nil {
		msg := domain.UserMessage(stageErr)
		log.Printf("ingest %s (%s) failed: %v", documentID, doc.Type, stageErr)
		span.Fail(stageErr)
		if domain.ErrorCode(stageErr) != domain.ErrCodeValidation {
			telemetry.CaptureError(ctx, stageErr)
		}
		doc, err = s.transition(writeCtx, doc, domain.FailProcessing(msg))
		if err != nil {
			return nil, err
		}
		return doc, domain.IngestionFailed(msg)
	}

	doc, err = s.transition(writeCtx, doc, domain.CompleteProcessing(count, &text))
	if err != nil {
		return nil, err
	}
	log.Printf("ingest %s (%s) completed with %d chunks", documentID, doc.Type, count)
	return doc, nil
}

// process runs extract, chunk, embed and store in order.
func (s *IngestionService) process(ctx context.Context, doc *domain.Document) (int, string, error) {
	telemetry.AddBreadcrumb(ctx, "ingest", "extract "+string(doc.Type))
	text, err := s.extract(ctx, doc)
	if err != nil {
		return 0, "", err
	}

	telemetry.AddBreadcrumb(ctx, "ingest", "chunk")
	var texts []string
	for _, t := range SplitText(text, s.cfg.Chunk) {
		if hasText(t) {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return 0, "", domain.ErrNoChunks
	}
	chunks := domain.NewChunks(doc.ID, texts)

	telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("embed %d chunks", len(chunks)))
	vectors, err := retry.Do(ctx, s.retryPolicy(doc.ID, "embed"), func(ctx context.Context) ([][]float32, error) {
		return s.embedder.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return 0, "", err
	}
	if len(vectors) != len(chunks) {
		return 0, "", domain.Transient(domain.ErrEmbeddingService.Message,
			fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)))
	}

	embedded := make([]domain.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = domain.EmbeddedChunk{Chunk: c, Embedding: vectors[i]}
	}

	telemetry.AddBreadcrumb(ctx, "ingest", "upsert")
	if err := s.vectors.Upsert(ctx, doc.ID, embedded); err != nil {
		return 0, "", err
	}
	return len(chunks), text, nil
}

func (s *IngestionService) extract(ctx context.Context, doc *domain.Document) (string, error) {
	policy := s.retryPolicy(doc.ID, "fetch")

	if doc.Type == domain.DocumentTypeYouTube {
		return retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
			return s.extractor.ExtractTranscript(ctx, doc.SourceLocation)
		})
	}
	if !doc.Type.IsVectorized() {
		return s.extractor.Extract(ctx, nil, doc.Type)
	}
	if s.blobs == nil {
		return "", domain.ErrStorageUnavailable
	}

	data, err := retry.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return s.blobs.Download(ctx, doc.SourceLocation)
	})
	if err != nil {
		return "", err
	}
	return s.extractor.Extract(ctx, data, doc.Type)
}

func (s *IngestionService) retryPolicy(documentID, stage string) retry.Policy {
	p := s.policy
	p.OnRetry = func(attempt int, err error) {
		log.Printf("ingest %s: %s attempt %d failed, retrying: %v", documentID, stage, attempt, err)
	}
	return p
}

// reconcile marks a document completed because its vectors are already stored.
func (s *IngestionService) reconcile(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if doc.ProcessingStatus == domain.StatusProcessing {
		// A stale run left vectors behind; close it out as failed first so the
		// move to completed is a legal transition.
		var err error
		doc, err = s.transition(ctx, doc, domain.FailProcessing(domain.ErrProcessingInterrupted.Message))
		if err != nil {
			return nil, err
		}
	}
	log.Printf("ingest %s: vectors already stored, marking completed", doc.ID)
	return s.transition(ctx, doc, domain.Reconcile())
}

// transition validates and persists a status change. The write is conditional
// on the status the caller last saw.
func (s *IngestionService) transition(ctx context.Context, doc *domain.Document, u domain.DocumentUpdate) (*domain.Document, error) {
	if err := domain.Transition(doc.ProcessingStatus, *u.ProcessingStatus); err != nil {
		return nil, err
	}
	updated, err := s.docs.UpdateStatus(ctx, doc.ID, doc.ProcessingStatus, u)
	if err != nil {
		return nil, fmt.Errorf("failed to mark document %s %s: %w", doc.ID, *u.ProcessingStatus, err)
	}
	return updated, nil
}

func (s *IngestionService) isStale(doc *domain.Document) bool {
	return s.cfg.StaleAfter > 0 && s.now().Sub(doc.UpdatedAt) >= s.cfg.StaleAfter
}
