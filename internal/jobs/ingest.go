package jobs

import (
	"context"
	"errors"
	"log"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/queue"
)

// DocumentIngester is the part of the ingestion service the queue consumer drives.
type DocumentIngester interface {
	Ingest(ctx context.Context, documentID string) (*domain.Document, error)
	Reingest(ctx context.Context, documentID string) (*domain.Document, error)
}

// IngestHandler turns queued messages into ingestion runs. Outcomes already
// recorded on the document are acknowledged; only load and persistence
// failures are reported back to the consumer.
func IngestHandler(ingester DocumentIngester) queue.Handler {
	return func(ctx context.Context, msg queue.IngestMessage) error {
		run := ingester.Ingest
		if msg.Reingest {
			run = ingester.Reingest
		}

		doc, err := run(ctx, msg.DocumentID)
		switch {
		case err == nil:
			log.Printf("ingest job: document %s is %s", doc.ID, doc.ProcessingStatus)
			return nil
		case domain.ErrorCode(err) == domain.ErrCodeIngestionFailed:
			log.Printf("ingest job: document %s failed: %s", msg.DocumentID, domain.UserMessage(err))
			return nil
		case errors.Is(err, domain.ErrIngestionInProgress):
			log.Printf("ingest job: document %s already processing", msg.DocumentID)
			return nil
		case domain.IsNotFound(err):
			log.Printf("ingest job: document %s no longer exists", msg.DocumentID)
			return nil
		default:
			return err
		}
	}
}
