package pages

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"

	"github.com/keithlinneman/secretmark/internal/content"
	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/scanner"
)

var ErrInvalidOptions = errors.New("pages: invalid options")

// Notifier delivers content change notifications. content.Manager
// implements it.
type Notifier interface {
	Subscribe(fn func()) (cancel func())
}

// SnapshotProvider returns the active content snapshot.
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// Scanner rewrites secret markers in a document. *scanner.Scanner implements it.
type Scanner interface {
	Scan(ctx context.Context, root *html.Node) scanner.Result
}

// StoreMetrics is satisfied by *metrics.ServerMetrics.
type StoreMetrics interface {
	SetDocuments(n int)
}

type Options struct {
	Content SnapshotProvider
	Scanner Scanner
	Logger  log.Logger
	Metrics StoreMetrics
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

func (o *Options) validate() error {
	if o.Content == nil {
		return fmt.Errorf("%w: Content is nil", ErrInvalidOptions)
	}
	if o.Scanner == nil {
		return fmt.Errorf("%w: Scanner is nil", ErrInvalidOptions)
	}
	return nil
}

type document struct {
	sum      [sha256.Size]byte
	root     *html.Node
	rendered []byte
}

// Stats describes the store for the status endpoint.
type Stats struct {
	Ready        bool      `json:"ready"`
	Documents    int       `json:"documents"`
	Scans        int64     `json:"scans"`
	Containers   int       `json:"containers"`
	Processed    int64     `json:"processed"`
	Replacements int64     `json:"replacements"`
	ContentHash  string    `json:"content_hash,omitempty"`
	LastScanAt   time.Time `json:"last_scan_at,omitzero"`
}

type Store struct {
	content SnapshotProvider
	scanner Scanner
	logger  log.Logger
	metrics StoreMetrics

	mu    sync.Mutex
	ready bool
	snap  *content.Snapshot
	docs  map[string]*document
	stats Stats
}

func New(opts Options) (*Store, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Store{
		content: opts.Content,
		scanner: opts.Scanner,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		docs:    make(map[string]*document),
	}, nil
}

// Attach subscribes Notify to n. ctx is used for every notification.
func (s *Store) Attach(ctx context.Context, n Notifier) (cancel func()) {
	return n.Subscribe(func() { s.Notify(ctx) })
}

// Ready marks the store ready and runs the initial scan. Later calls only
// rescan, which changes nothing.
func (s *Store) Ready(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		s.ready = true
		s.logger.Info(ctx, "pages ready, running initial secret scan")
	}
	s.refresh(ctx)
}

// Notify syncs with the active snapshot and rescans every document.
// Notifications before Ready are dropped; Ready covers them.
func (s *Store) Notify(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return
	}
	s.refresh(ctx)
}

var errNotReady = errors.New("pages not scanned yet")

// Check implements health.Probe. It fails until Ready has run.
func (s *Store) Check(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return errNotReady
	}
	return nil
}

// Render returns the rendered bytes of the page at name, a slash separated
// path inside the snapshot such as "t/welcome/index.html".
func (s *Store) Render(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked(name)
}

// RenderFor is Render restricted to snap. It misses while snap has not been
// synced and scanned yet, so callers never pair a snapshot with a rendering
// from another one.
func (s *Store) RenderFor(snap *content.Snapshot, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap == nil || snap != s.snap {
		return nil, false
	}
	return s.renderLocked(name)
}

func (s *Store) renderLocked(name string) ([]byte, bool) {
	d, ok := s.docs[name]
	if !ok || d.rendered == nil {
		return nil, false
	}
	return d.rendered, true
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Ready = s.ready
	st.Documents = len(s.docs)
	return st
}

// refresh runs with s.mu held.
func (s *Store) refresh(ctx context.Context) {
	ctx, span := otel.Tracer("secretmark/pages").Start(ctx, "pages.refresh")
	defer span.End()

	if snap, ok := s.content.Get(); ok && snap != s.snap {
		s.sync(ctx, snap)
	}

	var total scanner.Result
	for name, d := range s.docs {
		res := s.scanner.Scan(ctx, d.root)
		total.Containers += res.Containers
		total.Processed += res.Processed
		total.Replacements += res.Replacements
		if res.Processed > 0 || d.rendered == nil {
			if err := d.render(); err != nil {
				s.logger.Error(ctx, err, "render page failed", "page", name)
			}
		}
	}

	s.stats.Scans++
	s.stats.Containers = total.Containers
	s.stats.Processed += int64(total.Processed)
	s.stats.Replacements += int64(total.Replacements)
	s.stats.LastScanAt = time.Now().UTC()

	span.SetAttributes(
		attribute.Int("pages.documents", len(s.docs)),
		attribute.Int("pages.processed", total.Processed),
		attribute.Int("pages.replacements", total.Replacements),
	)
	if s.metrics != nil {
		s.metrics.SetDocuments(len(s.docs))
	}
}

// sync parses new or changed HTML files of snap and drops removed ones.
func (s *Store) sync(ctx context.Context, snap *content.Snapshot) {
	next := make(map[string]*document, len(s.docs))
	var parsed, kept int

	err := fs.WalkDir(snap.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPage(p) {
			return nil
		}
		b, err := fs.ReadFile(snap.FS, p)
		if err != nil {
			s.logger.Warn(ctx, "read page failed", "page", p, "error", err)
			return nil
		}
		sum := sha256.Sum256(b)
		if old, ok := s.docs[p]; ok && old.sum == sum {
			next[p] = old
			kept++
			return nil
		}
		root, err := html.Parse(bytes.NewReader(b))
		if err != nil {
			s.logger.Warn(ctx, "parse page failed", "page", p, "error", err)
			return nil
		}
		next[p] = &document{sum: sum, root: root}
		parsed++
		return nil
	})
	if err != nil {
		// keep serving what we had
		s.logger.Error(ctx, err, "walk content snapshot failed")
		return
	}

	s.docs = next
	s.snap = snap
	s.stats.ContentHash = snap.Meta.SHA256
	s.logger.Info(ctx, "pages synced with content",
		"documents", len(next),
		"parsed", parsed,
		"kept", kept,
		"content_hash", snap.Meta.SHA256,
	)
}

// isPage matches the names the site handler serves as HTML.
func isPage(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func (d *document) render() error {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return err
	}
	d.rendered = buf.Bytes()
	return nil
}
