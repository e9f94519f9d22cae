package pages

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"golang.org/x/net/html"

	"github.com/keithlinneman/secretmark/internal/content"
	"github.com/keithlinneman/secretmark/internal/scanner"
)

func siteFS(pages map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range pages {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

// countingScanner wraps a real scanner and records calls.
type countingScanner struct {
	inner *scanner.Scanner
	calls int
}

func (c *countingScanner) Scan(ctx context.Context, root *html.Node) scanner.Result {
	c.calls++
	return c.inner.Scan(ctx, root)
}

type fakeStoreMetrics struct{ documents int }

func (m *fakeStoreMetrics) SetDocuments(n int) { m.documents = n }

func newTestStore(t *testing.T, mgr *content.Manager) (*Store, *countingScanner, *fakeStoreMetrics) {
	t.Helper()
	sc, err := scanner.New(scanner.Options{})
	if err != nil {
		t.Fatal(err)
	}
	cs := &countingScanner{inner: sc}
	m := &fakeStoreMetrics{}
	s, err := New(Options{Content: mgr, Scanner: cs, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	return s, cs, m
}

const (
	indexPage = `<html><body><p class="excerpt">teaser !{one}</p></body></html>`
	topicPage = `<html><body><div class="cooked">full !{two}</div></body></html>`
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("err = %v", err)
	}
	if _, err := New(Options{Content: content.NewManager()}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("err = %v", err)
	}
}

func TestStore_ReadyScansPages(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{
		"index.html":         indexPage,
		"t/topic/index.html": topicPage,
		"static/site.css":    "body{}",
	})})
	s, _, m := newTestStore(t, mgr)

	if _, ok := s.Render("index.html"); ok {
		t.Fatal("pages rendered before Ready")
	}
	s.Ready(t.Context())

	for _, name := range []string{"index.html", "t/topic/index.html"} {
		b, ok := s.Render(name)
		if !ok {
			t.Fatalf("%s not rendered", name)
		}
		out := string(b)
		if strings.Contains(out, "!{") || !strings.Contains(out, `class="secret-message"`) {
			t.Fatalf("%s not scanned: %s", name, out)
		}
	}
	if _, ok := s.Render("static/site.css"); ok {
		t.Fatal("non-HTML file held as a document")
	}

	st := s.Stats()
	if !st.Ready || st.Documents != 2 || st.Replacements != 2 || st.Scans != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if m.documents != 2 {
		t.Fatalf("metrics documents = %d", m.documents)
	}
}

func TestStore_RepeatedTriggersAreStable(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": indexPage})})
	s, _, _ := newTestStore(t, mgr)

	s.Ready(t.Context())
	first, _ := s.Render("index.html")
	s.Ready(t.Context())
	s.Notify(t.Context())
	again, _ := s.Render("index.html")

	if !bytes.Equal(first, again) {
		t.Fatalf("output changed:\n%s\n%s", first, again)
	}
	if st := s.Stats(); st.Replacements != 1 || st.Scans != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestStore_NotifyBeforeReadyIgnored(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": indexPage})})
	s, cs, _ := newTestStore(t, mgr)

	s.Notify(t.Context())
	if cs.calls != 0 {
		t.Fatalf("scans before Ready = %d", cs.calls)
	}
	if _, ok := s.Render("index.html"); ok {
		t.Fatal("page rendered before Ready")
	}
}

func TestStore_ContentSwapRescansChangedPagesOnly(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{
		"index.html":         indexPage,
		"t/topic/index.html": topicPage,
	}), Meta: content.Meta{SHA256: "aaa"}})
	s, _, _ := newTestStore(t, mgr)
	cancel := s.Attach(t.Context(), mgr)
	defer cancel()
	s.Ready(t.Context())

	s.mu.Lock()
	topicBefore := s.docs["t/topic/index.html"]
	s.mu.Unlock()

	// new bundle: index changed, topic unchanged, new page added, nothing removed
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{
		"index.html":         `<html><body><p class="excerpt">new !{three}</p></body></html>`,
		"t/topic/index.html": topicPage,
		"t/new/index.html":   `<html><body><div class="cooked">!{four}</div></body></html>`,
	}), Meta: content.Meta{SHA256: "bbb"}})

	s.mu.Lock()
	topicAfter := s.docs["t/topic/index.html"]
	s.mu.Unlock()
	if topicBefore != topicAfter {
		t.Fatal("unchanged page was re-parsed")
	}

	b, ok := s.Render("index.html")
	if !ok || !strings.Contains(string(b), ">three</span>") {
		t.Fatalf("changed page not rescanned: %s", b)
	}
	if b, ok := s.Render("t/new/index.html"); !ok || strings.Contains(string(b), "!{four}") {
		t.Fatalf("new page not scanned: %s", b)
	}

	st := s.Stats()
	if st.Documents != 3 || st.ContentHash != "bbb" || st.Replacements != 4 {
		t.Fatalf("stats = %+v", st)
	}

	// removed pages disappear
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": indexPage}), Meta: content.Meta{SHA256: "ccc"}})
	if _, ok := s.Render("t/new/index.html"); ok {
		t.Fatal("removed page still rendered")
	}
}

func TestStore_AttachCancel(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": indexPage})})
	s, cs, _ := newTestStore(t, mgr)
	s.Ready(t.Context())

	cancel := s.Attach(t.Context(), mgr)
	cancel()
	calls := cs.calls
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": topicPage})})
	if cs.calls != calls {
		t.Fatal("notification delivered after cancel")
	}
}

func TestStore_NoContent(t *testing.T) {
	s, _, _ := newTestStore(t, content.NewManager())
	s.Ready(t.Context())
	if st := s.Stats(); st.Documents != 0 || !st.Ready {
		t.Fatalf("stats = %+v", st)
	}
}

func TestStore_CheckFailsUntilReady(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": indexPage})})
	s, _, _ := newTestStore(t, mgr)

	if err := s.Check(t.Context()); err == nil {
		t.Fatal("Check passed before Ready")
	}
	s.Ready(t.Context())
	if err := s.Check(t.Context()); err != nil {
		t.Fatalf("Check after Ready: %v", err)
	}
}

func TestStore_RenderForIsBoundToSnapshot(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{"index.html": indexPage})})
	s, _, _ := newTestStore(t, mgr)

	first, _ := mgr.Get()
	if _, ok := s.RenderFor(first, "index.html"); ok {
		t.Fatal("rendered before Ready")
	}
	s.Ready(t.Context())
	if b, ok := s.RenderFor(first, "index.html"); !ok || strings.Contains(string(b), "!{one}") {
		t.Fatalf("RenderFor(first) = %q, %v", b, ok)
	}

	// published but not yet delivered to the store
	mgr.Set(content.Snapshot{FS: siteFS(map[string]string{
		"index.html": topicPage,
		"old.htm":    `<p class="excerpt">!{legacy}</p>`,
	})})
	second, _ := mgr.Get()
	if _, ok := s.RenderFor(second, "index.html"); ok {
		t.Fatal("rendering of the previous snapshot returned for the new one")
	}
	if _, ok := s.RenderFor(nil, "index.html"); ok {
		t.Fatal("nil snapshot rendered")
	}

	s.Notify(t.Context())
	if b, ok := s.RenderFor(second, "index.html"); !ok || !strings.Contains(string(b), ">two</span>") {
		t.Fatalf("RenderFor(second) = %q, %v", b, ok)
	}
	if b, ok := s.RenderFor(second, "old.htm"); !ok || strings.Contains(string(b), "!{legacy}") {
		t.Fatalf(".htm page = %q, %v", b, ok)
	}
	if _, ok := s.RenderFor(first, "index.html"); ok {
		t.Fatal("stale snapshot still rendered")
	}
}
