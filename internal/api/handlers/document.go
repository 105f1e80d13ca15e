package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/pagination"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/go-chi/chi/v5"
)

// maxUploadMemory is how much of a multipart upload is kept in memory before
// spilling to temporary files.
const maxUploadMemory = 8 << 20

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
	RegisterLink(ctx context.Context, input service.LinkInput) (*domain.Document, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, input service.ListInput) (*pagination.Page[*domain.Document], error)
}

type DocumentIngester interface {
	Ingest(ctx context.Context, documentID string) (*domain.Document, error)
	Reingest(ctx context.Context, documentID string) (*domain.Document, error)
}

type DocumentHandler struct {
	svc      DocumentService
	ingester DocumentIngester
}

func NewDocumentHandler(svc DocumentService, ingester DocumentIngester) *DocumentHandler {
	return &DocumentHandler{svc: svc, ingester: ingester}
}

type RegisterLinkRequest struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type DocumentResponse struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	SourceLocation    string  `json:"source_location"`
	MimeType          string  `json:"mime_type"`
	ProcessingStatus  string  `json:"processing_status"`
	ProcessingError   *string `json:"processing_error,omitempty"`
	IndexedChunkCount *int    `json:"indexed_chunk_count,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

// DocumentFromDomain converts a document to its wire form.
func DocumentFromDomain(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:                d.ID,
		Type:              string(d.Type),
		SourceLocation:    d.SourceLocation,
		MimeType:          d.MimeType,
		ProcessingStatus:  string(d.ProcessingStatus),
		ProcessingError:   d.ProcessingError,
		IndexedChunkCount: d.IndexedChunkCount,
		CreatedAt:         d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:         d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Upload accepts a multipart form with the file under "file".
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	doc, err := h.svc.Upload(r.Context(), service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, DocumentFromDomain(doc))
}

func (h *DocumentHandler) RegisterLink(w http.ResponseWriter, r *http.Request) {
	var req RegisterLinkRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.BadBody(w, err)
		return
	}
	if req.URL == "" {
		api.Error(w, http.StatusBadRequest, "url is required")
		return
	}

	doc, err := h.svc.RegisterLink(r.Context(), service.LinkInput{
		Type: domain.DocumentType(req.Type),
		URL:  req.URL,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, DocumentFromDomain(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentFromDomain(doc))
}

// List pages through documents newest first. Query: status, limit, cursor.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.svc.List(r.Context(), service.ListInput{
		Status: domain.ProcessingStatus(q.Get("status")),
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*DocumentResponse, 0, len(page.Items))
	for _, d := range page.Items {
		items = append(items, DocumentFromDomain(d))
	}
	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

// Ingest runs ingestion synchronously and returns the resulting document.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	h.runIngest(w, r, h.ingester.Ingest)
}

// Reingest clears a failed or completed document and ingests it again.
func (h *DocumentHandler) Reingest(w http.ResponseWriter, r *http.Request) {
	h.runIngest(w, r, h.ingester.Reingest)
}

func (h *DocumentHandler) runIngest(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*domain.Document, error)) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := fn(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentFromDomain(doc))
}
