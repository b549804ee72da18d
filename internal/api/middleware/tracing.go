package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns a middleware that wraps requests in an otelhttp server span.
// otelhttp extracts the incoming trace context, records the semantic
// convention attributes and the http.server metrics, and marks 5xx responses
// as errors. The request ID set by RequestID is added to the span.
func Tracing(serviceName string, opts ...otelhttp.Option) func(http.Handler) http.Handler {
	opts = append([]otelhttp.Option{otelhttp.WithSpanNameFormatter(spanName)}, opts...)

	return func(next http.Handler) http.Handler {
		annotated := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requestID := GetRequestID(r.Context()); requestID != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("request.id", requestID))
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(annotated, serviceName, opts...)
	}
}

func spanName(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
