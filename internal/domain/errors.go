package domain

import (
	"context"
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on code and message so sentinel errors survive wrapping with a cause.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeTransient         = "TRANSIENT_ERROR"
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeIngestionFailed   = "INGESTION_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidDocumentType   = NewDomainError(ErrCodeValidation, "invalid document type")
	ErrInvalidStatus         = NewDomainError(ErrCodeValidation, "invalid processing status")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
	ErrUnsupportedType       = NewDomainError(ErrCodeValidation, "unsupported document type")
	ErrEmptyPDF              = NewDomainError(ErrCodeValidation, "This PDF appears to be empty or scanned. No extractable text was found.")
	ErrUnreadableWord        = NewDomainError(ErrCodeValidation, "Could not read text from this Word document. The file may be corrupt or password protected.")
	ErrUnreadableSheet       = NewDomainError(ErrCodeValidation, "This spreadsheet has no readable cell content.")
	ErrUnreadableSlides      = NewDomainError(ErrCodeValidation, "Could not extract enough text from this presentation.")
	ErrNoTranscript          = NewDomainError(ErrCodeValidation, "No transcript available for this video. Captions may be disabled, private or missing.")
	ErrInvalidVideoURL       = NewDomainError(ErrCodeValidation, "invalid YouTube URL or video ID")
	ErrNoChunks              = NewDomainError(ErrCodeValidation, "document produced no text chunks")
	ErrProcessingInterrupted = NewDomainError(ErrCodeValidation, "processing was interrupted; retry to re-index")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrBlobNotFound     = NewDomainError(ErrCodeNotFound, "document blob not found")
)

// Configuration errors
var (
	ErrMissingCredentials = NewDomainError(ErrCodeConfiguration, "missing API credentials")
	ErrStorageUnavailable = NewDomainError(ErrCodeConfiguration, "blob storage is not configured")
)

// Transient errors
var (
	ErrEmbeddingService = NewDomainError(ErrCodeTransient, "embedding service error")
	ErrVectorStore      = NewDomainError(ErrCodeTransient, "vector store error")
	ErrChatService      = NewDomainError(ErrCodeTransient, "conversational model error")
	ErrStorageFailure   = NewDomainError(ErrCodeTransient, "blob storage error")
)

// Operation errors
var (
	ErrIngestionInProgress = NewDomainError(ErrCodeInvalidTransition, "document ingestion already in progress")
	ErrStatusConflict      = NewDomainError(ErrCodeInvalidTransition, "document status changed concurrently")
	ErrNotSearchable       = NewDomainError(ErrCodeInvalidTransition, "document has not finished ingestion")
)

// Transient wraps err as a retryable service failure.
func Transient(message string, err error) error {
	return NewDomainErrorWithCause(ErrCodeTransient, message, err)
}

// Validation builds a non-retryable error carrying a user-facing message.
func Validation(message string) error {
	return NewDomainError(ErrCodeValidation, message)
}

// IngestionFailed reports a document whose ingestion ended in the failed state.
// message is the stored processing error.
func IngestionFailed(message string) error {
	return NewDomainError(ErrCodeIngestionFailed, message)
}

// ErrorCode returns the code of the first DomainError in err's chain, or "".
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether err is worth another attempt. Transient service
// failures and per-call deadlines are; everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ErrorCode(err) == ErrCodeTransient
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return ErrorCode(err) == ErrCodeNotFound
}

// UserMessage returns the human-readable part of err. Validation errors keep
// their message verbatim; other domain errors include the cause.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	if de.Code == ErrCodeValidation || de.Code == ErrCodeIngestionFailed || de.Err == nil {
		return de.Message
	}
	return fmt.Sprintf("%s: %v", de.Message, de.Err)
}
