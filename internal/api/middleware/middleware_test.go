package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.NotEmpty(t, seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestAccessLog(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/search", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, http.MethodPost, entry.Data["method"])
	assert.Equal(t, "/api/search", entry.Data["path"])
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, 5, entry.Data["bytes"])
	assert.Equal(t, "10.0.0.1", entry.Data["remote_addr"])
	assert.NotEmpty(t, entry.Data["request_id"])
}

func TestAccessLog_DefaultStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])
}

func TestRequestID_ReplacesUnusableHeader(t *testing.T) {
	for _, raw := range []string{"has space", "line\nbreak", strings.Repeat("a", 129)} {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(RequestIDHeader, raw)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.NotEqual(t, raw, seen)
		assert.Len(t, seen, 36)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			assert.True(t, IsBodyTooLarge(err))
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	small := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"a"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, small)
	assert.Equal(t, http.StatusOK, w.Code)

	large := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(bytes.Repeat([]byte("x"), 64)))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, large)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "request body too large", body["error"])
	assert.Equal(t, "REQUEST_TOO_LARGE", body["code"])
}

func TestMaxBodyBytes_UnknownLength(t *testing.T) {
	handler := MaxBodyBytes(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		assert.True(t, IsBodyTooLarge(err))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/search", io.NopCloser(bytes.NewReader(bytes.Repeat([]byte("x"), 64))))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

// tracedRouter mounts the tracing middleware the way the server does and
// hands back the transaction each request ran in.
func tracedRouter(status int) (http.Handler, *[]*sentry.Span) {
	var seen []*sentry.Span
	record := func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, sentry.TransactionFromContext(r.Context()))
		w.WriteHeader(status)
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(SentryTracing("/api/health"))
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", record)
		r.Get("/hot-questions", record)
		r.Post("/sync", record)
	})
	return r, &seen
}

func TestSentryTracing_NamesTransactionAfterRoute(t *testing.T) {
	router, seen := tracedRouter(http.StatusOK)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/hot-questions?limit=3", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, *seen, 1)
	tx := (*seen)[0]
	require.NotNil(t, tx)
	assert.Equal(t, "GET /api/hot-questions", tx.Name)
	assert.Equal(t, sentry.SourceRoute, tx.Source)
	assert.Equal(t, "hot_questions", tx.Tags["api.operation"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), tx.Tags["request_id"])
	assert.Equal(t, sentry.SpanStatusOK, tx.Status)
}

func TestSentryTracing_SyncFailureStatus(t *testing.T) {
	router, seen := tracedRouter(http.StatusBadGateway)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	require.Len(t, *seen, 1)
	tx := (*seen)[0]
	assert.Equal(t, "sync", tx.Tags["api.operation"])
	assert.Equal(t, sentry.SpanStatusUnavailable, tx.Status)
}

func TestSentryTracing_SkipsUntracedPaths(t *testing.T) {
	router, seen := tracedRouter(http.StatusOK)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, *seen, 1)
	assert.Nil(t, (*seen)[0])
}

func TestSentryTracing_WithoutRouter(t *testing.T) {
	handler := SentryTracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestOperationForRoute(t *testing.T) {
	assert.Equal(t, "search", operationForRoute("/api/search"))
	assert.Equal(t, "test_connection", operationForRoute("/api/test-connection"))
	assert.Empty(t, operationForRoute("/api/*"))
	assert.Empty(t, operationForRoute("/metrics"))
}

func TestHTTPStatusToSpanStatus(t *testing.T) {
	assert.Equal(t, sentry.SpanStatusOK, httpStatusToSpanStatus(http.StatusOK))
	assert.Equal(t, sentry.SpanStatusInvalidArgument, httpStatusToSpanStatus(http.StatusBadRequest))
	assert.Equal(t, sentry.SpanStatusAborted, httpStatusToSpanStatus(http.StatusConflict))
	assert.Equal(t, sentry.SpanStatusResourceExhausted, httpStatusToSpanStatus(http.StatusRequestEntityTooLarge))
	assert.Equal(t, sentry.SpanStatusUnavailable, httpStatusToSpanStatus(http.StatusBadGateway))
	assert.Equal(t, sentry.SpanStatusInternalError, httpStatusToSpanStatus(http.StatusInternalServerError))
}
