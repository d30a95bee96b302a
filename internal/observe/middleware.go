package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TurnIDHeader carries the turn ID on HTTP requests and responses.
const TurnIDHeader = "X-Turn-ID"

// unmatchedRoute labels requests no mux pattern claimed, so probing random
// paths cannot grow the metric's cardinality.
const unmatchedRoute = "unmatched"

// statusWriter remembers the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an HTTP handler with a server span carrying the turn ID
// and a request duration measurement.
//
// The turn ID is taken from the X-Turn-ID request header or generated, and
// echoed on the response. Incoming W3C trace context is honoured and the
// trace ID is returned as X-Correlation-ID. Spans and metrics are labelled
// with the ServeMux pattern that matched ("POST /process",
// "GET /turns/{id}"), never the raw path.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			turnID := r.Header.Get(TurnIDHeader)
			if turnID == "" {
				turnID = uuid.NewString()
			}
			ctx := WithTurnID(prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header)), turnID)
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			w.Header().Set(TurnIDHeader, turnID)

			// ServeMux records the matched pattern on the request it is
			// handed, so keep that request to read it back.
			req := r.WithContext(ctx)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, req)

			route := Route(req)
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(sw.status),
			)
			if sw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(sw.status))
			}

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.String("status", strconv.Itoa(sw.status)),
				),
			)
			Logger(ctx).LogAttrs(ctx, slog.LevelInfo, "request completed",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", sw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// Route returns the path part of the ServeMux pattern that matched r, or
// "unmatched".
func Route(r *http.Request) string {
	p := r.Pattern
	if p == "" {
		return unmatchedRoute
	}
	// Drop a leading method ("GET /turns/{id}") and host.
	if _, rest, ok := strings.Cut(p, " "); ok {
		p = strings.TrimSpace(rest)
	}
	if i := strings.IndexByte(p, '/'); i > 0 {
		p = p[i:]
	}
	return strings.TrimSuffix(p, "{$}")
}
