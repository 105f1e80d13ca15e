// Package telemetry wraps Sentry tracing and error reporting for the
// ingestion and chat pipeline.
package telemetry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/getsentry/sentry-go"
)

const serverName = "docchatd"

// flushTimeout bounds how long shutdown waits for queued events.
const flushTimeout = 5 * time.Second

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client. The returned function flushes
// pending events. Without a DSN both are no-ops, and a client that fails to
// initialize is logged rather than returned so the service still starts.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		Debug:            cfg.Debug,
		ServerName:       serverName,
	})
	if err != nil {
		log.Printf("sentry: init failed, continuing without tracing: %v", err)
		return func() {}, nil
	}

	log.Printf("sentry: enabled (environment=%s, sample_rate=%.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler drops health probes and keeps child spans with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		if ctx.Span.Name == "GET /health" {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// SpanAttributes are the tags every pipeline span carries.
type SpanAttributes struct {
	DocumentID   string
	DocumentType string
	Operation    string
}

type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// Fail sets the span status from err's domain code.
func (s *Span) Fail(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = spanStatus(err)
	if code := domain.ErrorCode(err); code != "" {
		s.inner.SetTag("error_code", code)
	}
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// there is none, and tags it with attrs.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	if attrs.DocumentID != "" {
		span.SetTag("document_id", attrs.DocumentID)
	}
	if attrs.DocumentType != "" {
		span.SetTag("document_type", attrs.DocumentType)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}
	return span.Context(), &Span{inner: span}
}

func spanStatus(err error) sentry.SpanStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return sentry.SpanStatusDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return sentry.SpanStatusCanceled
	}
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound
	case domain.ErrCodeInvalidTransition:
		return sentry.SpanStatusAborted
	case domain.ErrCodeIngestionFailed:
		return sentry.SpanStatusFailedPrecondition
	case domain.ErrCodeConfiguration, domain.ErrCodeTransient:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError reports err tagged with its domain code.
func CaptureError(ctx context.Context, err error) {
	hubFor(ctx).WithScope(func(scope *sentry.Scope) {
		if code := domain.ErrorCode(err); code != "" {
			scope.SetTag("error_code", code)
		}
		hubFor(ctx).CaptureException(err)
	})
}

func CaptureMessage(ctx context.Context, message string) {
	hubFor(ctx).CaptureMessage(message)
}

// AddBreadcrumb records a pipeline step on the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFor(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
