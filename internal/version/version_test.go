package version

import (
	"runtime/debug"
	"testing"
)

func TestFill(t *testing.T) {
	i := Info{Version: "dev", Commit: "none"}
	i.fill(&debug.BuildInfo{
		GoVersion: "go1.24.11",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	if i.GoVersion != "go1.24.11" || i.Commit != "0123456789abcdef0123" {
		t.Fatalf("info = %+v", i)
	}
	if i.CommitDate != "2026-01-02T03:04:05Z" || i.BuildDate != i.CommitDate {
		t.Fatalf("dates = %q %q", i.CommitDate, i.BuildDate)
	}
	if i.VCSDirty == nil || !*i.VCSDirty {
		t.Fatal("expected dirty")
	}
	if got := i.String(); got != "dev (0123456789ab-dirty)" {
		t.Fatalf("String = %q", got)
	}
}

func TestFill_LdflagsWin(t *testing.T) {
	i := Info{Version: "1.0.0", Commit: "release", BuildDate: "stamped"}
	i.fill(&debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "other"},
		{Key: "vcs.time", Value: "later"},
		{Key: "vcs.modified", Value: "maybe"},
	}})
	if i.Commit != "release" || i.BuildDate != "stamped" || i.VCSDirty != nil {
		t.Fatalf("info = %+v", i)
	}
	if i.String() != "1.0.0 (release)" {
		t.Fatalf("String = %q", i.String())
	}
}

func TestGet(t *testing.T) {
	if Get().Version == "" {
		t.Fatal("empty version")
	}
}
