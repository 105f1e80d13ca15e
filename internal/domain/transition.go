package domain

import "fmt"

// Transition validates a processing status change. Every status write goes
// through here: single-document writes from the ingestion pipeline and the
// stale reclaimer's bulk processing -> failed update alike.
//
//	idle       -> processing | completed
//	processing -> completed | failed
//	failed     -> processing | completed
//	completed  -> (terminal)
//
// The ->completed edges out of idle and failed only happen when the vector store
// already holds the document's namespace.
func Transition(from, to ProcessingStatus) error {
	var ok bool
	switch from {
	case StatusIdle:
		ok = to == StatusProcessing || to == StatusCompleted
	case StatusProcessing:
		ok = to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		ok = to == StatusProcessing || to == StatusCompleted
	case StatusCompleted:
		ok = false
	default:
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidStatus.Message, fmt.Errorf("%q", from))
	}
	if !ok {
		return NewDomainError(ErrCodeInvalidTransition, fmt.Sprintf("cannot move document from %s to %s", from, to))
	}
	return nil
}

// StartProcessing is the update written before any stage work begins.
func StartProcessing() DocumentUpdate {
	s := StatusProcessing
	return DocumentUpdate{ProcessingStatus: &s, ClearError: true, ClearChunkCount: true}
}

// CompleteProcessing records a successful ingestion. extractedText may be nil.
func CompleteProcessing(chunkCount int, extractedText *string) DocumentUpdate {
	s := StatusCompleted
	return DocumentUpdate{
		ProcessingStatus:  &s,
		ClearError:        true,
		IndexedChunkCount: &chunkCount,
		ExtractedText:     extractedText,
	}
}

// FailProcessing records a failed ingestion with a user-facing message.
func FailProcessing(message string) DocumentUpdate {
	s := StatusFailed
	return DocumentUpdate{ProcessingStatus: &s, ProcessingError: &message, ClearChunkCount: true}
}

// Reconcile marks a document completed because its vectors are already stored.
func Reconcile() DocumentUpdate {
	s := StatusCompleted
	return DocumentUpdate{ProcessingStatus: &s, ClearError: true}
}
