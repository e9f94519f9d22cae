// Package cfg declares the server's configuration, binds it to flags and
// environment variables and validates it.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names by FillFromEnv in main.
const EnvPrefix = "SECRETMARK_"

type App struct {
	// logging
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	// listeners
	HTTPPort         int
	AdminPort        int
	APIMaxBodyBytes  int64
	TrustedProxyHops int
	ShutdownDrain    time.Duration

	// observability
	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	// content bundles
	EnableContentUpdates bool
	ContentSSMParam      string
	ContentS3Bucket      string
	ContentS3Prefix      string
	ContentSigningKeyARN string
	ContentPollInterval  time.Duration

	// secret markers
	SecretDefaultKey   string
	SecretFallbackKeys string
	ContainerClasses   string
}

// Register binds every field of c to fs with its default.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "attach stacks at or above this level (debug|info|warn|error)")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "log the source position of every error wrap")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "site and API listen port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "ops listen port (1..65535)")
	fs.Int64Var(&c.APIMaxBodyBytes, "api-max-body-bytes", 64<<10, "max request body for the secrets API")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 30*time.Second, "how long readiness fails before listeners close")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "reverse proxies in front of the site port (0 ignores X-Forwarded-For)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "serve pprof on the ops port")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "push profiles to -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server URL")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "pyroscope tenant (X-Scope-OrgID)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "export spans to -otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.BoolVar(&c.EnableContentUpdates, "enable-content-updates", false, "load and poll content bundles from SSM/S3 instead of serving the embedded seed site")
	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "/app/secretmark/content/stable/hash", "SSM parameter holding the active bundle hash")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "S3 bucket holding content bundles")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "secretmark/content/bundles", "S3 key prefix for content bundles")
	fs.StringVar(&c.ContentSigningKeyARN, "content-signing-key-arn", "", "KMS key used to verify bundle signatures (empty disables verification)")
	fs.DurationVar(&c.ContentPollInterval, "content-poll-interval", 30*time.Second, "how often the SSM parameter is polled")

	fs.StringVar(&c.SecretDefaultKey, "secret-default-key", codec.DefaultKey, "key used to encode markers and as the first decode fallback")
	fs.StringVar(&c.SecretFallbackKeys, "secret-fallback-keys", "", "comma separated extra keys tried when decoding")
	fs.StringVar(&c.ContainerClasses, "container-classes", "cooked,excerpt", "comma separated CSS classes of elements scanned for markers")
}

// FillFromEnv sets every flag that was not passed on the command line from
// PREFIX_FLAG_NAME ("foo-bar" reads PREFIX_FOO_BAR).
// Precedence is cli > env > default. Invalid env values are reported
// through logf and leave the default in place.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	onCLI := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { onCLI[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvName(prefix, f.Name)
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if onCLI[f.Name] {
			logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, v)
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, v); err != nil {
			_ = fs.Set(f.Name, prev)
			logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, v, err)
		}
	})
}

// EnvName returns the environment variable consulted for flag name.
func EnvName(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid field at once.
func Validate(c App) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !validPort(c.HTTPPort) {
		add("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if !validPort(c.AdminPort) {
		add("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		add("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.APIMaxBodyBytes < 1 {
		add("API_MAX_BODY_BYTES must be positive (got %d)", c.APIMaxBodyBytes)
	}
	if c.ShutdownDrain < 0 || c.ShutdownDrain > 5*time.Minute {
		add("SHUTDOWN_DRAIN must be 0..5m (got %s)", c.ShutdownDrain)
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		add("TRUSTED_PROXY_HOPS must be 0..8 (got %d)", c.TrustedProxyHops)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL: %w", err))
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		add("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		add("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			add("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			add("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); c.PyroServer == "" || err != nil || u.Scheme == "" || u.Host == "" {
			add("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			add("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}

	if c.EnableContentUpdates {
		if c.ContentSSMParam == "" {
			add("CONTENT_SSM_PARAM required when ENABLE_CONTENT_UPDATES=true")
		}
		if c.ContentS3Bucket == "" {
			add("CONTENT_S3_BUCKET required when ENABLE_CONTENT_UPDATES=true")
		}
		if c.ContentS3Prefix == "" {
			add("CONTENT_S3_PREFIX required when ENABLE_CONTENT_UPDATES=true")
		}
		if c.ContentPollInterval < time.Second {
			add("CONTENT_POLL_INTERVAL must be at least 1s (got %s)", c.ContentPollInterval)
		}
	}

	// an empty default key is the identity keystream and stays legal
	if len(SplitList(c.ContainerClasses)) == 0 {
		add("CONTAINER_CLASSES must name at least one class")
	}
	for _, class := range SplitList(c.ContainerClasses) {
		if strings.ContainsAny(class, " \t\n.#") {
			add("CONTAINER_CLASSES entry %q is not a bare class name", class)
		}
	}

	return errors.Join(errs...)
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }
