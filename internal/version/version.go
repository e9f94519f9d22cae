// Package version reports build metadata. The variables are set with
// -ldflags -X at release time; anything left empty is filled from the
// module's embedded VCS info.
package version

import (
	"runtime/debug"
	"strings"
)

var (
	Version    = "dev"
	Commit     = "none"
	CommitDate string
	BuildDate  string
	BuildID    string
)

type Info struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	BuildID    string `json:"build_id,omitempty"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		Version:    Version,
		Commit:     Commit,
		CommitDate: CommitDate,
		BuildDate:  BuildDate,
		BuildID:    BuildID,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		out.fill(bi)
	}
	return out
}

func (i *Info) fill(bi *debug.BuildInfo) {
	i.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "none" && s.Value != "" {
				i.Commit = s.Value
			}
		case "vcs.time":
			if i.CommitDate == "" {
				i.CommitDate = s.Value
			}
			if i.BuildDate == "" {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" || s.Value == "false" {
				dirty := s.Value == "true"
				i.VCSDirty = &dirty
			}
		}
	}
}

// ShortCommit is the first 12 characters of the commit.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 12 {
		return i.Commit[:12]
	}
	return i.Commit
}

// String is "version (commit)", with "-dirty" appended for modified trees.
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Version)
	b.WriteString(" (")
	b.WriteString(i.ShortCommit())
	if i.VCSDirty != nil && *i.VCSDirty {
		b.WriteString("-dirty")
	}
	b.WriteString(")")
	return b.String()
}
