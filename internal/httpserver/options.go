package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/secretmark/internal/health"
	"github.com/keithlinneman/secretmark/internal/httpmw"
	"github.com/keithlinneman/secretmark/internal/log"
)

// RouteRegistrar mounts a group of routes on the public router.
// secrethttp.API and sitehttp.Routes implement it.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// DefaultMaxBodyBytes caps request bodies for every route. Routes that take
// JSON apply their own, tighter limit.
const DefaultMaxBodyBytes = 64 << 10

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe
	ContentInfo  httpmw.ContentInfo // X-Content-Bundle-Version and X-Content-Hash
	MaxBodyBytes int64

	// Routes are registered in order. The site fallback goes last.
	Routes []RouteRegistrar
}

func (o *Options) maxBody() int64 {
	if o.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return o.MaxBodyBytes
}
