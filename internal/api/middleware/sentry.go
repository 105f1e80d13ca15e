package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
)

var spanStatusByHTTP = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusConflict:              sentry.SpanStatusAborted,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusOutOfRange,
	http.StatusUnprocessableEntity:   sentry.SpanStatusFailedPrecondition,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	http.StatusBadGateway:            sentry.SpanStatusUnavailable,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

// SentryMiddleware runs each request inside a transaction on a cloned hub.
// The transaction is renamed to the chi route once routing has happened and
// tagged with the document id. Panics are reported and re-raised; 5xx
// responses are reported as messages.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		opts := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
			sentry.ContinueFromRequest(r),
		}
		tx := sentry.StartTransaction(sentry.SetHubOnContext(r.Context(), hub), r.Method+" "+r.URL.Path, opts...)
		defer tx.Finish()

		if id := GetRequestID(r.Context()); id != "" {
			tx.SetTag("request_id", id)
			hub.Scope().SetTag("request_id", id)
		}
		hub.Scope().SetRequest(r)

		r = r.WithContext(tx.Context())
		sw := &statusWriter{ResponseWriter: w}

		defer func() {
			if v := recover(); v != nil {
				tx.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), v)
				panic(v)
			}
		}()
		next.ServeHTTP(sw, r)

		status := sw.code()
		tx.Status = spanStatusFor(status)
		tx.SetData("http.response.status_code", status)

		route, documentID := routeInfo(r)
		if route != "" {
			tx.Name = r.Method + " " + route
			tx.Source = sentry.SourceRoute
		}
		if documentID != "" {
			tx.SetTag("document_id", documentID)
			hub.Scope().SetTag("document_id", documentID)
		}

		if status >= http.StatusInternalServerError {
			hub.CaptureMessage(tx.Name + ": " + http.StatusText(status))
		}
	})
}

func spanStatusFor(status int) sentry.SpanStatus {
	if s, ok := spanStatusByHTTP[status]; ok {
		return s
	}
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	default:
		return sentry.SpanStatusInternalError
	}
}
