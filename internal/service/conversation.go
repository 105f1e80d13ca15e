package service

import (
	"context"
	"log"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

// DocumentReader loads documents.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// Ingester runs synchronous ingestion for a document.
type Ingester interface {
	Ingest(ctx context.Context, documentID string) (*domain.Document, error)
}

// Retriever assembles passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, documentID, query string, k int) (string, error)
}

// ChatModel is the hosted conversational model.
type ChatModel interface {
	Complete(ctx context.Context, prompt domain.ChatPrompt) (string, error)
}

// ConversationService builds per-message grounding and asks the chat model for a reply.
type ConversationService struct {
	docs      DocumentReader
	ingester  Ingester
	retriever Retriever
	blobs     BlobStore
	chat      ChatModel

	// transcripts routes YouTube links through ingestion instead of passing the URL.
	transcripts bool
	topK        int
}

func NewConversationService(
	docs DocumentReader,
	ingester Ingester,
	retriever Retriever,
	blobs BlobStore,
	chat ChatModel,
	youtubeTranscripts bool,
) *ConversationService {
	return &ConversationService{
		docs:        docs,
		ingester:    ingester,
		retriever:   retriever,
		blobs:       blobs,
		chat:        chat,
		transcripts: youtubeTranscripts,
		topK:        DefaultTopK,
	}
}

// BuildContext returns the grounding for one user message. Failures come back
// as an error context carrying a chat-facing sentinel, never as an error.
func (s *ConversationService) BuildContext(ctx context.Context, documentID, message string) domain.GroundingContext {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.BuildContext", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "context",
	})
	defer span.End()

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return s.failure(domain.DocumentTypeUnknown, documentID, err)
	}

	switch {
	case doc.Type == domain.DocumentTypeImage:
		if s.blobs == nil {
			return s.failure(doc.Type, documentID, domain.ErrStorageUnavailable)
		}
		data, err := s.blobs.Download(ctx, doc.SourceLocation)
		if err != nil {
			return s.failure(doc.Type, documentID, err)
		}
		return domain.ImageContext(data, doc.MimeType)

	case doc.Type == domain.DocumentTypeWeb, doc.Type == domain.DocumentTypeURL:
		return domain.URLContext(doc.SourceLocation)

	case doc.Type == domain.DocumentTypeYouTube && !s.transcripts:
		return domain.URLContext(doc.SourceLocation)

	case !doc.Type.IsVectorized():
		return s.failure(doc.Type, documentID, domain.ErrUnsupportedType)
	}

	switch doc.ProcessingStatus {
	case domain.StatusFailed:
		return domain.ErrorContext(doc.Type, doc.ErrorMessage())
	case domain.StatusIdle:
		t := doc.Type
		doc, err = s.ingester.Ingest(ctx, documentID)
		if err != nil {
			return s.failure(t, documentID, err)
		}
	}

	if !doc.Searchable() {
		return s.failure(doc.Type, documentID, domain.ErrIngestionInProgress)
	}

	text, err := s.retriever.Retrieve(ctx, documentID, message, s.topK)
	if err != nil {
		return s.failure(doc.Type, documentID, err)
	}
	return domain.RetrievedContext(text)
}

// Reply answers message about documentID. When the document cannot be used the
// sentinel message is returned as the reply and the model is not called.
func (s *ConversationService) Reply(ctx context.Context, documentID string, history []domain.ChatMessage, message string) (string, error) {
	grounding := s.BuildContext(ctx, documentID, message)
	if grounding.IsError() {
		return grounding.Message, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Reply", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "chat",
	})
	defer span.End()

	reply, err := s.chat.Complete(ctx, domain.ChatPrompt{
		History:   history,
		Message:   message,
		Grounding: grounding,
	})
	if err != nil {
		span.Fail(err)
		return "", err
	}
	return reply, nil
}

func (s *ConversationService) failure(t domain.DocumentType, documentID string, err error) domain.GroundingContext {
	log.Printf("chat %s: %v", documentID, err)
	return domain.ErrorContext(t, domain.UserMessage(err))
}
