package httpmw

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/xerrors"
)

// statusWriter records the status and size of a response and times the
// "response.write" child span, which starts at the first byte.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64

	ctx     context.Context
	start   time.Time
	span    trace.Span
	started bool
	blocked time.Duration
	err     error
}

func (w *statusWriter) begin() {
	if w.started {
		return
	}
	w.started = true
	if !trace.SpanFromContext(w.ctx).IsRecording() {
		return
	}
	ttfb := time.Since(w.start)
	_, w.span = otel.Tracer("secretmark/httpmw").Start(w.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", ttfb.Seconds())))
}

func (w *statusWriter) end() {
	if w.span == nil {
		return
	}
	w.span.SetAttributes(
		attribute.Int("http.response.status_code", w.code()),
		attribute.Int64("http.response.body.size", w.bytes),
		attribute.Float64("http.server.write.block_seconds", w.blocked.Seconds()),
	)
	if w.err != nil {
		w.span.RecordError(w.err)
		w.span.SetStatus(codes.Error, w.err.Error())
	}
	w.span.End()
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) WriteHeader(code int) {
	w.begin()
	if w.status == 0 {
		w.status = code
	}
	t := time.Now()
	w.ResponseWriter.WriteHeader(code)
	w.blocked += time.Since(t)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.begin()
	if w.status == 0 {
		w.status = http.StatusOK
	}
	t := time.Now()
	n, err := w.ResponseWriter.Write(b)
	w.blocked += time.Since(t)
	w.bytes += int64(n)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, xerrors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// WithLogger stores a request-scoped logger in the context. The query string
// is left out because decode links may carry tokens and keys.
func WithLogger(base log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			client := ClientIPFromContext(ctx)
			peer := r.RemoteAddr
			if host, _, err := net.SplitHostPort(peer); err == nil {
				peer = host
			}
			scheme := requestScheme(r)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("network.peer.address", peer),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"network.peer.address", peer,
				"server.address", r.Host,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

var quietExt = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".svg": true, ".ico": true, ".woff": true, ".woff2": true, ".map": true,
}

// AccessLog writes one line per request through the context logger.
// Static assets and health probes are not logged.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, ctx: r.Context(), start: time.Now()}
			next.ServeHTTP(sw, r)
			sw.end()

			if quietExt[strings.ToLower(path.Ext(r.URL.Path))] {
				return
			}
			if r.URL.Path == "/-/ready" || r.URL.Path == "/-/healthy" {
				return
			}

			var reqBytes int64
			if r.ContentLength > 0 {
				reqBytes = r.ContentLength
			}
			log.FromContext(r.Context()).Info(r.Context(), "http request",
				"http.response.status_code", sw.code(),
				"http.server.request.duration", time.Since(sw.start).Seconds(),
				"http.response.body.size", sw.bytes,
				"http.request.body.size", reqBytes,
				"http.route", routePattern(r),
			)
		})
	}
}

// Scope tags the context logger and span with a handler name.
func Scope(handler string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(attribute.String("app.handler", handler))
			}
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("handler", handler))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestScheme(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		s := strings.ToLower(strings.TrimSpace(strings.Split(xf, ",")[0]))
		if s == "http" || s == "https" {
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
