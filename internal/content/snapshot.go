package content

import (
	"io/fs"
	"strings"
	"time"
)

// versionFile is an optional bundle member holding a human readable version.
const versionFile = "version.txt"

// Snapshot is one immutable bundle. FS must not be mutated after Set.
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	LoadedAt time.Time
}

// SeedSnapshot wraps an embedded filesystem as the startup content.
func SeedSnapshot(fsys fs.FS) Snapshot {
	return Snapshot{
		FS: fsys,
		Meta: Meta{
			Version: readVersion(fsys),
			Source:  SourceSeed,
		},
	}
}

func readVersion(fsys fs.FS) string {
	b, err := fs.ReadFile(fsys, versionFile)
	if err != nil {
		return ""
	}
	v := strings.TrimSpace(string(b))
	if len(v) > 64 {
		v = v[:64]
	}
	return v
}
