package sitehandler

import (
	"path"
	"strings"
)

// cacheControlForFile picks a Cache-Control value by extension. Files
// without an extension are treated like HTML.
func cacheControlForFile(name string, o *Options) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".html", "":
		return o.HTMLCacheControl
	case ".css", ".js", ".mjs",
		".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico",
		".woff", ".woff2", ".ttf", ".eot",
		".map":
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
