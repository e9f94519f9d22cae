package sitehandler

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/secretmark/internal/content"
	"github.com/keithlinneman/secretmark/internal/log"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// PageRenderer returns the scanned rendering of an HTML file of snap. It
// misses until snap has been scanned. *pages.Store implements it.
type PageRenderer interface {
	RenderFor(snap *content.Snapshot, name string) ([]byte, bool)
}

type Options struct {
	Logger  log.Logger
	Content SnapshotProvider

	// Pages supplies every HTML response. HTML is never read from the
	// snapshot directly; a miss is answered with 503.
	Pages PageRenderer

	// FallbackFS holds MaintenanceFile and Fallback404File.
	FallbackFS fs.FS

	MaintenanceFile string // default "maintenance.html"
	Fallback404File string // default "404.html"
	Site404File     string // default "404.html", read from the snapshot

	HTMLCacheControl  string // default "no-cache"
	AssetCacheControl string // default "public, max-age=31536000, immutable"
	OtherCacheControl string // default "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.Fallback404File == "" {
		o.Fallback404File = "404.html"
	}
	if o.Site404File == "" {
		o.Site404File = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Content == nil {
		return fmt.Errorf("%w: Content is nil", ErrInvalidOptions)
	}
	if o.Pages == nil {
		return fmt.Errorf("%w: Pages is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// fail at boot if the maintenance page was not packaged
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
