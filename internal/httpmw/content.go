package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContentInfo reports the active content snapshot. content.Manager
// implements it.
type ContentInfo interface {
	ContentVersion() string
	ContentHash() string
}

// ContentHeaders stamps responses with the snapshot that served them.
func ContentHeaders(info ContentInfo) Middleware {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, h := info.ContentVersion(), info.ContentHash()
			if v != "" {
				w.Header().Set("X-Content-Bundle-Version", v)
			}
			if h != "" {
				short := h
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Content-Hash", short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				span.SetAttributes(
					attribute.String("content.version", v),
					attribute.String("content.hash", h),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
