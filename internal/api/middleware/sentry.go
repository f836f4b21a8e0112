package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
)

const apiPrefix = "/api/"

// SentryTracing starts a Sentry transaction per API request, named after the
// matched chi route and tagged with the knowledge operation it served
// (search, sync, ...). Paths in untraced, such as health checks and metric
// scrapes, pass through without a transaction. Works without Sentry
// initialized.
func SentryTracing(untraced ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(untraced))
	for _, p := range untraced {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
			}

			options := []sentry.SpanOption{
				sentry.WithOpName("http.server"),
				sentry.WithTransactionSource(sentry.SourceURL),
			}
			if trace := r.Header.Get(sentry.SentryTraceHeader); trace != "" {
				options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get(sentry.SentryBaggageHeader)))
			}

			transaction := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, options...)
			defer transaction.Finish()

			ctx := sentry.SetHubOnContext(transaction.Context(), hub)
			r = r.WithContext(ctx)

			if requestID := GetRequestID(ctx); requestID != "" {
				hub.Scope().SetTag("request_id", requestID)
				transaction.SetTag("request_id", requestID)
			}

			defer func() {
				if err := recover(); err != nil {
					transaction.Status = sentry.SpanStatusInternalError
					hub.RecoverWithContext(ctx, err)
					panic(err)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// the route pattern is only complete once chi has routed the request
			if pattern := routePattern(r); pattern != "" {
				transaction.Name = r.Method + " " + pattern
				transaction.Source = sentry.SourceRoute
				if op := operationForRoute(pattern); op != "" {
					transaction.SetTag("api.operation", op)
					hub.Scope().SetTag("api.operation", op)
				}
			}

			status := rec.Status()
			transaction.Status = httpStatusToSpanStatus(status)
			transaction.SetData("http.response.status_code", status)

			if status >= http.StatusInternalServerError {
				hub.CaptureMessage(fmt.Sprintf("%s answered HTTP %d", transaction.Name, status))
			}
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

// operationForRoute maps "/api/hot-questions" to "hot_questions".
func operationForRoute(pattern string) string {
	if !strings.HasPrefix(pattern, apiPrefix) {
		return ""
	}
	op := strings.Trim(strings.TrimPrefix(pattern, apiPrefix), "/")
	if op == "" || strings.Contains(op, "*") {
		return ""
	}
	return strings.ReplaceAll(op, "-", "_")
}

// httpStatusToSpanStatus covers the statuses the search API answers with.
func httpStatusToSpanStatus(status int) sentry.SpanStatus {
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status == http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case status == http.StatusConflict:
		// a sync is already running
		return sentry.SpanStatusAborted
	case status == http.StatusRequestEntityTooLarge:
		return sentry.SpanStatusResourceExhausted
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	case status == http.StatusBadGateway:
		// the vendor failed, not this service
		return sentry.SpanStatusUnavailable
	case status == http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	default:
		return sentry.SpanStatusInternalError
	}
}
