package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/keithlinneman/secretmark/internal/pathutil"
)

// resolvePath maps a URL path to a file in fsys. A non-empty redirectTo is
// the canonical URL the client should be sent to instead.
func resolvePath(urlPath string, fsys fs.FS) (file, redirectTo string, ok bool) {
	clean, valid := pathutil.CleanURLPath(urlPath)
	if !valid {
		return "", "", false
	}

	rel := strings.TrimPrefix(clean, "/")
	switch {
	case clean == "/" || strings.HasSuffix(clean, "/"):
		name := rel + "index.html"
		return name, "", existsFile(fsys, name)
	case path.Ext(clean) != "":
		return rel, "", existsFile(fsys, rel)
	}

	// /t/welcome -> /t/welcome/ when it is a directory with an index
	if existsFile(fsys, rel+"/index.html") {
		return "", clean + "/", true
	}
	return "", "", false
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
