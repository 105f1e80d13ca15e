package service

import (
	"context"
	"log"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	"github.com/cloo-solutions/docchat/internal/pagination"
	"github.com/cloo-solutions/docchat/internal/queue"
	"github.com/cloo-solutions/docchat/internal/storage"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"github.com/google/uuid"
)

// DocumentStore persists new documents.
type DocumentStore interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, status *domain.ProcessingStatus, cursor *pagination.Cursor, limit int) ([]*domain.Document, error)
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// BlobUploader stores uploaded files.
type BlobUploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// IngestQueue hands documents to background workers.
type IngestQueue interface {
	Enqueue(ctx context.Context, msg queue.IngestMessage) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// DocumentService registers uploads and links and queues them for ingestion.
type DocumentService struct {
	docs    DocumentStore
	blobs   BlobUploader
	queue   IngestQueue
	uuidGen UUIDGenerator
	now     func() time.Time
}

// NewDocumentService creates a DocumentService. blobs and queue may be nil;
// without a queue documents stay idle until ingested on demand.
func NewDocumentService(docs DocumentStore, blobs BlobUploader, q IngestQueue) *DocumentService {
	return NewDocumentServiceWithUUIDGen(docs, blobs, q, &DefaultUUIDGenerator{})
}

// NewDocumentServiceWithUUIDGen creates a DocumentService with custom UUID generator (for testing)
func NewDocumentServiceWithUUIDGen(docs DocumentStore, blobs BlobUploader, q IngestQueue, uuidGen UUIDGenerator) *DocumentService {
	return &DocumentService{
		docs:    docs,
		blobs:   blobs,
		queue:   q,
		uuidGen: uuidGen,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UploadInput is a file received from a client.
type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ListInput selects a page of documents. Cursor is the opaque value returned
// with the previous page.
type ListInput struct {
	Status domain.ProcessingStatus
	Limit  int
	Cursor string
}

// LinkInput registers an external URL.
type LinkInput struct {
	Type domain.DocumentType
	URL  string
}

// Upload stores the blob, creates an idle document and queues it.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*domain.Document, error) {
	docType := DetectType(input.Filename, input.ContentType)
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Upload", telemetry.SpanAttributes{
		DocumentType: string(docType),
		Operation:    "upload",
	})
	defer span.End()

	if s.blobs == nil {
		return nil, domain.ErrStorageUnavailable
	}
	if len(input.Data) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "uploaded file is empty")
	}

	id := s.uuidGen.NewString()
	key := storage.ObjectKey(id, input.Filename)
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.blobs.Upload(ctx, key, contentType, input.Data); err != nil {
		return nil, err
	}

	doc := domain.NewDocument(id, docType, key, contentType, s.now())
	registered, err := s.register(ctx, doc)
	if err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			log.Printf("document %s: remove orphaned blob %s: %v", id, key, delErr)
		}
		return nil, err
	}
	return registered, nil
}

// RegisterLink creates a document for a web page or video link.
func (s *DocumentService) RegisterLink(ctx context.Context, input LinkInput) (*domain.Document, error) {
	link := strings.TrimSpace(input.URL)
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "url must be an absolute http(s) URL")
	}

	docType := input.Type
	if docType == "" {
		docType = domain.DocumentTypeURL
	}
	if _, err := extract.VideoID(link); err == nil {
		docType = domain.DocumentTypeYouTube
	}
	if !docType.IsLink() {
		return nil, domain.ErrInvalidDocumentType
	}

	doc := domain.NewDocument(s.uuidGen.NewString(), docType, link, "text/uri-list", s.now())
	return s.register(ctx, doc)
}

// Get returns a document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, id)
}

// List returns documents newest first.
func (s *DocumentService) List(ctx context.Context, input ListInput) (*pagination.Page[*domain.Document], error) {
	limit := input.Limit
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	after, err := pagination.Decode(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	var status *domain.ProcessingStatus
	if input.Status != "" {
		if !domain.IsValidStatus(input.Status) {
			return nil, domain.ErrInvalidStatus
		}
		status = &input.Status
	}

	docs, err := s.docs.ListWithCursor(ctx, status, after, limit+1)
	if err != nil {
		return nil, err
	}
	page := pagination.Paginate(docs, limit, func(d *domain.Document) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return &page, nil
}

func (s *DocumentService) register(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.enqueue(ctx, doc)
	return doc, nil
}

// enqueue is best effort: an idle document is still ingested on first chat.
func (s *DocumentService) enqueue(ctx context.Context, doc *domain.Document) {
	if s.queue == nil || !doc.Type.IsVectorized() {
		return
	}
	if err := s.queue.Enqueue(ctx, queue.IngestMessage{DocumentID: doc.ID}); err != nil {
		log.Printf("document %s: enqueue ingest failed: %v", doc.ID, err)
		telemetry.CaptureError(ctx, err)
	}
}

// DetectType maps a filename and MIME type to a DocumentType.
func DetectType(filename, contentType string) domain.DocumentType {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return domain.DocumentTypePDF
	case ".docx", ".doc":
		return domain.DocumentTypeDoc
	case ".xlsx", ".xlsm", ".xls":
		return domain.DocumentTypeSheet
	case ".pptx", ".ppt":
		return domain.DocumentTypeSlides
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return domain.DocumentTypeImage
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return domain.DocumentTypeUnknown
	}
	switch {
	case mediaType == "application/pdf":
		return domain.DocumentTypePDF
	case strings.Contains(mediaType, "wordprocessingml"), mediaType == "application/msword":
		return domain.DocumentTypeDoc
	case strings.Contains(mediaType, "spreadsheetml"), mediaType == "application/vnd.ms-excel":
		return domain.DocumentTypeSheet
	case strings.Contains(mediaType, "presentationml"), mediaType == "application/vnd.ms-powerpoint":
		return domain.DocumentTypeSlides
	case strings.HasPrefix(mediaType, "image/"):
		return domain.DocumentTypeImage
	}
	return domain.DocumentTypeUnknown
}
