// Package jobs holds the background work of the ingestion pipeline: the
// periodic stale-run reclaimer and the queue handler that ingests documents.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloo-solutions/docchat/internal/telemetry"
)

type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker calls a JobProcessor once on start and then every interval. A pass
// may not outlive the interval, so passes never overlap.
type Worker struct {
	name      string
	processor JobProcessor
	interval  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewWorker(name string, processor JobProcessor, interval time.Duration) *Worker {
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start blocks until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	log.Printf("%s: running every %v", w.name, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.pass(ctx)
		select {
		case <-ctx.Done():
			log.Printf("%s: stopped (%v)", w.name, ctx.Err())
			return
		case <-w.stop:
			log.Printf("%s: stopped", w.name)
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()
	defer func() {
		if v := recover(); v != nil {
			err := fmt.Errorf("%s: panic: %v", w.name, v)
			log.Print(err)
			telemetry.CaptureError(ctx, err)
		}
	}()

	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("%s: %v", w.name, err)
	}
}

// Stop ends the loop and waits for the current pass. It is safe to call more
// than once, and after the context has already ended the loop.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
