// Package httpserver builds and runs the public listener: site pages, the
// secrets API and the health probes behind one middleware stack.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/secretmark/internal/health"
	"github.com/keithlinneman/secretmark/internal/httpmw"
	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/xerrors"
)

// compressTypes are the response types worth gzipping. Scanned topic pages
// and API JSON dominate.
var compressTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"application/javascript",
	"text/javascript",
	"application/json",
	"image/svg+xml",
}

// untracedExt are static asset extensions that never get a span.
var untracedExt = map[string]bool{
	".css": true, ".js": true, ".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".svg": true, ".ico": true, ".woff": true, ".woff2": true, ".map": true,
}

// shouldTrace skips probes, crawler files and static assets.
func shouldTrace(r *http.Request) bool {
	switch p := r.URL.Path; p {
	case "/-/healthy", "/-/ready", "/robots.txt", "/favicon.ico":
		return false
	default:
		return !untracedExt[strings.ToLower(path.Ext(p))]
	}
}

// router holds the routes and the middleware that needs chi's route context.
func router(opts *Options) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Compress(5, compressTypes...),
		httpmw.AnnotateHTTPRoute,
		httpmw.AccessLog(),
		httpmw.MaxBody(opts.maxBody()),
	)

	if opts.Health != nil {
		r.Get("/-/healthy", health.Handler(opts.Health, "ok"))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.Handler(opts.Readiness, "ready"))
	}
	for _, rr := range opts.Routes {
		if rr != nil {
			rr.RegisterRoutes(r)
		}
	}
	return r
}

// NewHandler returns the router wrapped in the request middleware.
// Start owns the *http.Server around it.
func NewHandler(opts Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	var contentMW httpmw.Middleware
	if opts.ContentInfo != nil {
		contentMW = httpmw.ContentHeaders(opts.ContentInfo)
	}

	tracing := func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server",
			otelhttp.WithFilter(shouldTrace),
			// AnnotateHTTPRoute renames the span to the matched route
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
		)
	}

	// outermost first: security headers land on every response, including
	// recovered panics and rate limit denials
	return httpmw.Chain(router(&opts),
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID(httpmw.RequestIDHeader),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		tracing,
		contentMW,
		httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id"),
		opts.MetricsMW,
		httpmw.WithLogger(L),
	)
}

// Public server limits.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port (default 8080) and serves in the background.
// The returned stop shuts the server down gracefully and is safe to call
// more than once.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen %s", addr)
	}
	srv := NewServer(addr, NewHandler(opts))

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	var stopErr error
	stop := func(sctx context.Context) error {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}
	return stop, nil
}
