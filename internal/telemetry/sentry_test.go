package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WithoutDSN(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestSpanStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sentry.SpanStatus
	}{
		{"validation", domain.ErrEmptyPDF, sentry.SpanStatusInvalidArgument},
		{"not found", domain.ErrDocumentNotFound, sentry.SpanStatusNotFound},
		{"in progress", domain.ErrIngestionInProgress, sentry.SpanStatusAborted},
		{"ingestion failed", domain.IngestionFailed("no transcript"), sentry.SpanStatusFailedPrecondition},
		{"transient", domain.Transient("embedding service error", errors.New("503")), sentry.SpanStatusUnavailable},
		{"configuration", domain.ErrMissingCredentials, sentry.SpanStatusUnavailable},
		{"deadline", fmt.Errorf("embed: %w", context.DeadlineExceeded), sentry.SpanStatusDeadlineExceeded},
		{"canceled", context.Canceled, sentry.SpanStatusCanceled},
		{"plain", errors.New("boom"), sentry.SpanStatusInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spanStatus(tt.err))
		})
	}
}

func TestStartSpan_NestsUnderParent(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "parent", SpanAttributes{Operation: "chat"})
	defer parent.End()

	_, child := StartSpan(ctx, "child", SpanAttributes{DocumentID: "doc-1", DocumentType: "pdf"})
	defer child.End()

	require.NotNil(t, child.inner)
	assert.Equal(t, parent.inner.SpanID, child.inner.ParentSpanID)
	assert.Equal(t, "doc-1", child.inner.Tags["document_id"])
	assert.Equal(t, "pdf", child.inner.Tags["document_type"])

	child.Fail(domain.ErrEmptyPDF)
	assert.Equal(t, sentry.SpanStatusInvalidArgument, child.inner.Status)
	assert.Equal(t, domain.ErrCodeValidation, child.inner.Tags["error_code"])
}

func TestSampler(t *testing.T) {
	sample := sampler(0.25)

	health := sentry.StartSpan(context.Background(), "http.server", sentry.WithTransactionName("GET /health"))
	defer health.Finish()
	assert.Equal(t, 0.0, sample(sentry.SamplingContext{Span: health}))

	other := sentry.StartSpan(context.Background(), "http.server", sentry.WithTransactionName("POST /v1/documents/{id}/chat"))
	defer other.Finish()
	assert.Equal(t, 0.25, sample(sentry.SamplingContext{Span: other}))
}
