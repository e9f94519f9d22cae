package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/secretmark/internal/version"
)

func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestNew_Registers(t *testing.T) {
	m := New()
	m.ObserveScan(time.Millisecond, 1, 0, 0)
	body := scrape(t, m)
	for _, name := range []string{"go_goroutines", "http_inflight_requests", "secret_scan_runs_total", "content_watcher_stale"} {
		if !strings.Contains(body, name) {
			t.Errorf("scrape missing %s", name)
		}
	}
}

func TestObserveScan(t *testing.T) {
	m := New()
	m.ObserveScan(2*time.Millisecond, 3, 1, 5)
	m.ObserveScan(time.Millisecond, 0, 4, 0)

	if got := testutil.ToFloat64(m.scanRuns); got != 2 {
		t.Fatalf("runs = %v", got)
	}
	if got := testutil.ToFloat64(m.scanContainers.WithLabelValues("processed")); got != 3 {
		t.Fatalf("processed = %v", got)
	}
	if got := testutil.ToFloat64(m.scanContainers.WithLabelValues("skipped")); got != 5 {
		t.Fatalf("skipped = %v", got)
	}
	if got := testutil.ToFloat64(m.replacements); got != 5 {
		t.Fatalf("replacements = %v", got)
	}
	if n := testutil.CollectAndCount(m.scanDur); n != 1 {
		t.Fatalf("histogram series = %d", n)
	}
}

func TestIncDecode(t *testing.T) {
	m := New()
	m.IncDecode(true)
	m.IncDecode(false)
	m.IncDecode(false)
	if testutil.ToFloat64(m.decodes.WithLabelValues("ok")) != 1 || testutil.ToFloat64(m.decodes.WithLabelValues("placeholder")) != 2 {
		t.Fatal("decode counters wrong")
	}
}

func TestContentSetters(t *testing.T) {
	m := New()
	m.SetContentSource("seed")
	m.SetContentSource("s3")
	if testutil.CollectAndCount(m.contentSource) != 1 {
		t.Fatal("content source should keep a single series")
	}
	m.SetContentBundle("abc")
	m.SetContentBundle("def")
	if testutil.ToFloat64(m.contentBundle.WithLabelValues("def")) != 1 || testutil.CollectAndCount(m.contentBundle) != 1 {
		t.Fatal("bundle info not replaced")
	}
	m.SetWatcherStale(true)
	if testutil.ToFloat64(m.watcherStale) != 1 {
		t.Fatal("stale gauge")
	}
	m.IncWatcherError("ssm")
	if testutil.ToFloat64(m.watcherErrors.WithLabelValues("ssm")) != 1 {
		t.Fatal("watcher error counter")
	}
	m.SetDocuments(7)
	if testutil.ToFloat64(m.documents) != 7 {
		t.Fatal("documents gauge")
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	dirty := false
	m.SetBuildInfoFromVersion("secretmark", "server", version.Info{Version: "1.0.0", Commit: "abc", GoVersion: "go1.24", VCSDirty: &dirty})
	if !strings.Contains(scrape(t, m), `vcs_dirty="false"`) {
		t.Fatal("build_info missing vcs_dirty label")
	}
}

// Middleware

func TestMiddleware_RoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/t/{slug}", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("post")) })
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	h := m.Middleware(r)

	for _, p := range []string{"/t/one", "/t/two", "/boom", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "/t/{slug}", "200")); got != 2 {
		t.Fatalf("slug route = %v", got)
	}
	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("GET", "/boom")); got != 1 {
		t.Fatalf("errors = %v", got)
	}
	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched = %v", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("inflight = %v", got)
	}
}

func TestMiddleware_Exemplar(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {})
	h := m.Middleware(r)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xaa},
		SpanID:     trace.SpanID{0xbb},
		TraceFlags: trace.FlagsSampled,
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(trace.ContextWithSpanContext(context.Background(), sc))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var pb dto.Metric
	if err := m.reqDur.WithLabelValues("GET", "/").(interface{ Write(*dto.Metric) error }).Write(&pb); err != nil {
		t.Fatalf("write: %v", err)
	}
	var found bool
	for _, b := range pb.GetHistogram().GetBucket() {
		if ex := b.GetExemplar(); ex != nil {
			for _, l := range ex.GetLabel() {
				if l.GetName() == "trace_id" && l.GetValue() == sc.TraceID().String() {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("exemplar with trace_id not recorded")
	}
}
