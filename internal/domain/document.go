package domain

import (
	"fmt"
	"time"
)

// DocumentType identifies how a document's content is obtained.
type DocumentType string

const (
	DocumentTypePDF     DocumentType = "pdf"
	DocumentTypeDoc     DocumentType = "doc"
	DocumentTypeSheet   DocumentType = "sheet"
	DocumentTypeSlides  DocumentType = "slides"
	DocumentTypeImage   DocumentType = "image"
	DocumentTypeYouTube DocumentType = "youtube"
	DocumentTypeWeb     DocumentType = "web"
	DocumentTypeURL     DocumentType = "url"
	DocumentTypeUnknown DocumentType = "unknown"
)

// ProcessingStatus is the ingestion state of a document.
type ProcessingStatus string

const (
	StatusIdle       ProcessingStatus = "idle"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Document is a user file or link tracked through ingestion. The ID doubles as
// the vector namespace.
type Document struct {
	ID                string
	Type              DocumentType
	SourceLocation    string
	MimeType          string
	ProcessingStatus  ProcessingStatus
	ProcessingError   *string
	IndexedChunkCount *int
	ExtractedText     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewDocument creates an idle document.
func NewDocument(id string, docType DocumentType, sourceLocation, mimeType string, createdAt time.Time) *Document {
	return &Document{
		ID:               id,
		Type:             docType,
		SourceLocation:   sourceLocation,
		MimeType:         mimeType,
		ProcessingStatus: StatusIdle,
		CreatedAt:        createdAt,
		UpdatedAt:        createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if !IsValidDocumentType(d.Type) {
		return fmt.Errorf("document Type is invalid: %s", d.Type)
	}
	if d.SourceLocation == "" {
		return fmt.Errorf("document SourceLocation is required")
	}
	if !IsValidStatus(d.ProcessingStatus) {
		return fmt.Errorf("document ProcessingStatus is invalid: %s", d.ProcessingStatus)
	}
	if d.ProcessingError != nil && d.ProcessingStatus != StatusFailed {
		return fmt.Errorf("document ProcessingError is only allowed when failed")
	}
	if d.IndexedChunkCount != nil && d.ProcessingStatus != StatusCompleted {
		return fmt.Errorf("document IndexedChunkCount is only allowed when completed")
	}
	return nil
}

// IsValidDocumentType checks if a DocumentType is known
func IsValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypePDF, DocumentTypeDoc, DocumentTypeSheet, DocumentTypeSlides,
		DocumentTypeImage, DocumentTypeYouTube, DocumentTypeWeb, DocumentTypeURL, DocumentTypeUnknown:
		return true
	}
	return false
}

func IsValidStatus(s ProcessingStatus) bool {
	switch s {
	case StatusIdle, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsLink reports whether the document points at an external URL rather than a blob.
func (t DocumentType) IsLink() bool {
	return t == DocumentTypeWeb || t == DocumentTypeURL || t == DocumentTypeYouTube
}

// IsVectorized reports whether documents of this type go through ingestion.
func (t DocumentType) IsVectorized() bool {
	switch t {
	case DocumentTypePDF, DocumentTypeDoc, DocumentTypeSheet, DocumentTypeSlides, DocumentTypeYouTube:
		return true
	}
	return false
}

// Searchable reports whether the document's vectors may be queried.
func (d *Document) Searchable() bool {
	return d.ProcessingStatus == StatusCompleted
}

// ErrorMessage returns the stored processing error or "".
func (d *Document) ErrorMessage() string {
	if d.ProcessingError == nil {
		return ""
	}
	return *d.ProcessingError
}

// DocumentUpdate is a partial write of the mutable processing fields. Nil fields
// are left untouched; the Clear flags null the column.
type DocumentUpdate struct {
	ProcessingStatus  *ProcessingStatus
	ProcessingError   *string
	ClearError        bool
	IndexedChunkCount *int
	ClearChunkCount   bool
	ExtractedText     *string
}

// Apply copies the update onto d.
func (u DocumentUpdate) Apply(d *Document) {
	if u.ProcessingStatus != nil {
		d.ProcessingStatus = *u.ProcessingStatus
	}
	if u.ClearError {
		d.ProcessingError = nil
	}
	if u.ProcessingError != nil {
		msg := *u.ProcessingError
		d.ProcessingError = &msg
	}
	if u.ClearChunkCount {
		d.IndexedChunkCount = nil
	}
	if u.IndexedChunkCount != nil {
		n := *u.IndexedChunkCount
		d.IndexedChunkCount = &n
	}
	if u.ExtractedText != nil {
		text := *u.ExtractedText
		d.ExtractedText = &text
	}
}
