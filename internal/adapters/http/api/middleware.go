package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/pkg/metrics"
)

// MetricsMiddleware records request count, latency and errors per route
// pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		durationMs := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status, durationMs)
		if wrapped.statusCode >= http.StatusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType(wrapped.statusCode))
		}
	})
}

// errorType returns a standardized error type based on HTTP status code.
func errorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusConflict:
		return "conflict"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// Idempotency applies a mutation at most once per Idempotency-Key. The
// response of the first attempt is recorded and replayed to retries; a
// retry arriving while the first attempt still runs gets 409. Server errors
// release the key so the request can be retried.
func (s *Server) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if key == "" || s.deps.Deduper == nil {
			next.ServeHTTP(w, r)
			return
		}
		scoped := r.Method + " " + r.URL.Path + " " + key
		ctx := r.Context()

		state, resp := s.deps.Deduper.Begin(ctx, scoped)
		switch state {
		case dedupe.Done:
			metrics.RecordIdempotentReplay()
			w.Header().Set(HeaderReplay, "true")
			if resp.ContentType != "" {
				w.Header().Set("Content-Type", resp.ContentType)
			}
			w.WriteHeader(resp.Status)
			_, _ = w.Write(resp.Body)
			return
		case dedupe.Pending:
			writeError(w, NewKind("api.idempotency", ErrInFlight))
			return
		case dedupe.New:
		}

		rec := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK, body: new(bytes.Buffer)}
		completed := false
		defer func() {
			if !completed {
				s.deps.Deduper.Abort(ctx, scoped)
			}
		}()
		next.ServeHTTP(rec, r)

		if rec.statusCode >= http.StatusInternalServerError {
			return
		}
		s.deps.Deduper.Complete(ctx, scoped, dedupe.Response{
			Status:      rec.statusCode,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		completed = true
	})
}

// responseWriter captures the status code and, when body is set, a copy of
// the response body.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.body != nil {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}
