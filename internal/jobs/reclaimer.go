package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
)

// DefaultStaleAfter is how long a document may sit in processing before it is
// considered abandoned.
const DefaultStaleAfter = 15 * time.Minute

// StaleDocumentRepository applies one update to every document left in a
// status since before cutoff.
type StaleDocumentRepository interface {
	UpdateStale(ctx context.Context, from domain.ProcessingStatus, cutoff time.Time, u domain.DocumentUpdate) ([]string, error)
}

// StaleReclaimer marks abandoned processing runs as failed so users can retry them.
type StaleReclaimer struct {
	repo       StaleDocumentRepository
	staleAfter time.Duration
	now        func() time.Time
}

func NewStaleReclaimer(repo StaleDocumentRepository, staleAfter time.Duration) *StaleReclaimer {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &StaleReclaimer{repo: repo, staleAfter: staleAfter, now: time.Now}
}

// ProcessJobs reclaims every document whose processing run went stale.
func (r *StaleReclaimer) ProcessJobs(ctx context.Context) error {
	_, err := r.Reclaim(ctx)
	return err
}

// Reclaim returns the ids of the documents it failed.
func (r *StaleReclaimer) Reclaim(ctx context.Context) ([]string, error) {
	cutoff := r.now().Add(-r.staleAfter)
	ids, err := r.repo.UpdateStale(ctx, domain.StatusProcessing, cutoff,
		domain.FailProcessing(domain.ErrProcessingInterrupted.Message))
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale documents: %w", err)
	}
	if len(ids) > 0 {
		log.Printf("reclaimed %d stale documents: %s", len(ids), strings.Join(ids, ", "))
		telemetry.CaptureMessage(ctx, fmt.Sprintf("reclaimed %d documents stuck in processing", len(ids)))
	}
	return ids, nil
}
