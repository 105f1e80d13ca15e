package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

// DefaultTopK is the number of passages retrieved per chat message.
const DefaultTopK = 5

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// PassageSearcher runs nearest-neighbor search within one document namespace.
type PassageSearcher interface {
	QueryTopK(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error)
}

// RetrievalService assembles grounding text for a query.
type RetrievalService struct {
	embedder QueryEmbedder
	searcher PassageSearcher
}

func NewRetrievalService(embedder QueryEmbedder, searcher PassageSearcher) *RetrievalService {
	return &RetrievalService{embedder: embedder, searcher: searcher}
}

// Retrieve returns the k passages of documentID most similar to query, joined
// with blank lines, most similar first. It returns domain.NoRelevantSections
// instead of an empty string.
func (s *RetrievalService) Retrieve(ctx context.Context, documentID, query string, k int) (string, error) {
	passages, err := s.Search(ctx, documentID, query, k)
	if err != nil {
		return "", err
	}
	return JoinPassages(passages), nil
}

// JoinPassages assembles passages into grounding text in the order given.
func JoinPassages(passages []domain.ScoredPassage) string {
	if len(passages) == 0 {
		return domain.NoRelevantSections
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// Search returns the scored passages behind Retrieve.
func (s *RetrievalService) Search(ctx context.Context, documentID, query string, k int) ([]domain.ScoredPassage, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "retrieve",
	})
	defer span.End()

	if k <= 0 {
		k = DefaultTopK
	}

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	passages, err := s.searcher.QueryTopK(ctx, documentID, vector, k)
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	return passages, nil
}

// DocumentSearcher serves direct passage searches. Unlike chat it never
// triggers ingestion: only completed documents are searched.
type DocumentSearcher struct {
	docs      DocumentReader
	retrieval *RetrievalService
}

func NewDocumentSearcher(docs DocumentReader, retrieval *RetrievalService) *DocumentSearcher {
	return &DocumentSearcher{docs: docs, retrieval: retrieval}
}

// Search returns ErrDocumentNotFound for an unknown id and ErrNotSearchable
// until the document's ingestion has completed.
func (s *DocumentSearcher) Search(ctx context.Context, documentID, query string, k int) ([]domain.ScoredPassage, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Searchable() {
		return nil, domain.ErrNotSearchable
	}
	return s.retrieval.Search(ctx, documentID, query, k)
}
