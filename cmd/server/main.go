package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/secretmark/internal/cfg"
	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/content"
	"github.com/keithlinneman/secretmark/internal/health"
	"github.com/keithlinneman/secretmark/internal/httpmw"
	"github.com/keithlinneman/secretmark/internal/httpserver"
	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/metrics"
	"github.com/keithlinneman/secretmark/internal/opshttp"
	"github.com/keithlinneman/secretmark/internal/otelx"
	"github.com/keithlinneman/secretmark/internal/pages"
	"github.com/keithlinneman/secretmark/internal/prof"
	"github.com/keithlinneman/secretmark/internal/ratelimit"
	"github.com/keithlinneman/secretmark/internal/scanner"
	"github.com/keithlinneman/secretmark/internal/secrethttp"
	"github.com/keithlinneman/secretmark/internal/sitehandler"
	"github.com/keithlinneman/secretmark/internal/sitehttp"
	v "github.com/keithlinneman/secretmark/internal/version"
	"github.com/keithlinneman/secretmark/internal/webassets"
)

const appName = "secretmark"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit_date=%s, build_id=%s, build_date=%s, go=%s)\n",
			appName, vi.String(), vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion)
		os.Exit(0)
	}

	// cli > env > default
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// levels were checked by Validate
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               appName,
		Version:           vi.Version,
		Commit:            vi.ShortCommit(),
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	classes := cfg.SplitList(conf.ContainerClasses)
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_content_updates", conf.EnableContentUpdates,
		"trace_sample", conf.TraceSample,
		"content_ssm_param", conf.ContentSSMParam,
		"content_s3_bucket", conf.ContentS3Bucket,
		"content_s3_prefix", conf.ContentS3Prefix,
		"content_signing_key_arn", conf.ContentSigningKeyARN,
		"container_classes", classes,
		"fallback_keys", len(cfg.SplitList(conf.SecretFallbackKeys)),
	)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// the collector is node-local, so the exporter dials without TLS
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// secret markers
	cdc := codec.New(
		codec.WithDefaultKey(conf.SecretDefaultKey),
		codec.WithFallbackKeys(cfg.SplitList(conf.SecretFallbackKeys)...),
	)
	sc, err := scanner.New(scanner.Options{
		Codec:            cdc,
		ContainerClasses: classes,
		Logger:           L.With("component", "scanner"),
		Metrics:          m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create scanner")
		os.Exit(1)
	}

	contentMgr := content.NewManager()

	// the store follows every snapshot swap once it is ready
	store, err := pages.New(pages.Options{
		Content: contentMgr,
		Scanner: sc,
		Logger:  L.With("component", "pages"),
		Metrics: m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create page store")
		os.Exit(1)
	}
	detach := store.Attach(ctx, contentMgr)
	defer detach()

	if seedFS, ok := webassets.SeedSiteFS(); ok {
		contentMgr.Set(content.SeedSnapshot(seedFS))
		L.Info(ctx, "loaded seed site content", "content_version", contentMgr.ContentVersion())
	} else {
		L.Warn(ctx, "no seed site content embedded, serving maintenance until a bundle loads")
	}

	validation := content.DefaultValidationOptions()
	validation.RequireSignature = conf.ContentSigningKeyARN != ""

	var contentLoader *content.Loader
	if conf.EnableContentUpdates {
		contentLoader, err = content.NewLoader(ctx, content.LoaderOptions{
			Logger:        L.With("component", "content"),
			SSMParam:      conf.ContentSSMParam,
			S3Bucket:      conf.ContentS3Bucket,
			S3Prefix:      conf.ContentS3Prefix,
			SigningKeyARN: conf.ContentSigningKeyARN,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create content loader, content updates disabled")
		} else if err := contentLoader.LoadIntoManager(ctx, contentMgr, validation); err != nil {
			L.Error(ctx, err, "failed to load content bundle, serving seed content")
		} else {
			L.Info(ctx, "loaded content bundle",
				"content_version", contentMgr.ContentVersion(),
				"content_hash", contentMgr.ContentHash(),
			)
		}
	}

	// initial scan of whatever content won
	store.Ready(ctx)

	m.SetContentSource(string(contentMgr.Source()))
	m.SetContentBundle(contentMgr.ContentHash())
	if t := contentMgr.LoadedAt(); !t.IsZero() {
		m.SetContentLoadedTimestamp(t)
	}

	if contentLoader != nil {
		watcher := content.NewWatcher(content.WatcherOptions{
			Logger:       L.With("component", "content-watcher"),
			Loader:       contentLoader,
			Manager:      contentMgr,
			PollInterval: conf.ContentPollInterval,
			Validation:   &validation,
			Metrics:      m,
			OnSwap: func(hash, version string) {
				m.SetContentBundle(hash)
				m.SetContentSource(string(content.SourceS3))
				m.SetContentLoadedTimestamp(time.Now())
			},
		})
		go func() { _ = watcher.Run(ctx) }()
	}

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L.With("component", "site"),
		Content:    contentMgr,
		Pages:      store,
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	secretAPI := secrethttp.NewAPI(secrethttp.Options{
		Codec:            cdc,
		Pages:            store,
		Content:          contentMgr,
		ContainerClasses: classes,
		Logger:           L,
		Metrics:          m,
		MaxBodyBytes:     conf.APIMaxBodyBytes,
	})

	var gate health.ShutdownGate

	// ready once content is active and the first scan has run, until drain
	readiness := health.All(gate.Probe(), contentMgr, store)

	limiter := ratelimit.New(ctx,
		ratelimit.WithMetrics(m),
		// logged once per visitor until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		ContentInfo:  contentMgr,
		MaxBodyBytes: conf.APIMaxBodyBytes,
		// site fallback goes last
		Routes: []httpserver.RouteRegistrar{secretAPI, sitehttp.New(siteHandler)},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the ops listener refuses public peers and forwarded requests
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops sending traffic
	gate.Set("draining")
	L.Info(bg, "draining", "drain", conf.ShutdownDrain.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.ShutdownDrain):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

// notifySystemd sends READY=1 when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify: close: %w", err)
	}
	return nil
}
