// Package webassets embeds the demo site served until a bundle is loaded and
// the pages shown when no content is available at all.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback seed
var embedded embed.FS

// FallbackFS holds maintenance.html and a bare 404.html.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}

// SeedSiteFS returns the demo site. ok is false if it has no index.html.
func SeedSiteFS() (fsys fs.FS, ok bool) {
	sub, err := fs.Sub(embedded, "seed")
	if err != nil {
		return nil, false
	}
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil, false
	}
	return sub, true
}
