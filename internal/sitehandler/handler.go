package sitehandler

import (
	"bytes"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/keithlinneman/secretmark/internal/content"
)

// Handler serves the active content snapshot. HTML comes from the page
// store so visitors get the scanned documents.
type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap, ok := h.opts.Content.Get()
	if !ok {
		h.serveMaintenance(w, r)
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, snap.FS)
	if redirectTo != "" {
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		h.serveNotFound(w, r, snap)
		return
	}

	if !isHTML(file) {
		if cc := cacheControlForFile(file, &h.opts); cc != "" {
			w.Header().Set("Cache-Control", cc)
		}
		http.ServeFileFS(w, r, snap.FS, file)
		return
	}

	b, ok := h.opts.Pages.RenderFor(snap, file)
	if !ok {
		// swap in progress or the page failed to parse
		h.opts.Logger.Debug(r.Context(), "page not scanned yet", "page", file)
		h.serveUnavailable(w, r, pendingRetryAfter)
		return
	}
	w.Header().Set("Cache-Control", h.opts.HTMLCacheControl)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, file, snap.LoadedAt, bytes.NewReader(b))
}

func isHTML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// Retry-After values, in seconds.
const (
	maintenanceRetryAfter = "60"
	pendingRetryAfter     = "5"
)

func (h *Handler) serveMaintenance(w http.ResponseWriter, r *http.Request) {
	h.serveUnavailable(w, r, maintenanceRetryAfter)
}

func (h *Handler) serveUnavailable(w http.ResponseWriter, r *http.Request, retryAfter string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", retryAfter)
	serveFileWithStatus(w, r, http.StatusServiceUnavailable, h.opts.FallbackFS, h.opts.MaintenanceFile)
}

// serveNotFound prefers the snapshot's themed 404 once it is scanned and
// falls back to the packaged one otherwise.
func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request, snap *content.Snapshot) {
	w.Header().Set("Cache-Control", "no-store")

	if b, ok := h.opts.Pages.RenderFor(snap, h.opts.Site404File); ok {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		if r.Method != http.MethodHead {
			_, _ = w.Write(b)
		}
		return
	}
	if existsFile(h.opts.FallbackFS, h.opts.Fallback404File) {
		serveFileWithStatus(w, r, http.StatusNotFound, h.opts.FallbackFS, h.opts.Fallback404File)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// statusOverrideWriter replaces the status of the first WriteHeader, since
// http.ServeFileFS always writes its own.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		code = w.status
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	// strip conditional headers so the forced status is never turned into a 304
	r = r.Clone(r.Context())
	r.Header.Del("If-Modified-Since")
	r.Header.Del("If-None-Match")
	http.ServeFileFS(&statusOverrideWriter{ResponseWriter: w, status: status}, r, fsys, name)
}
