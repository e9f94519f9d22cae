package webassets

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFallbackFS(t *testing.T) {
	fsys := FallbackFS()
	for _, name := range []string{"maintenance.html", "404.html"} {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
	data, _ := fs.ReadFile(fsys, "maintenance.html")
	if !strings.Contains(strings.ToLower(string(data)), "maintenance") {
		t.Fatal("maintenance.html does not mention maintenance")
	}
	if _, err := fs.Stat(fsys, "../seed"); err == nil {
		t.Fatal("fallback FS escaped its root")
	}
}

func TestSeedSiteFS(t *testing.T) {
	fsys, ok := SeedSiteFS()
	if !ok {
		t.Fatal("seed site has no index.html")
	}
	if _, err := fs.ReadFile(fsys, "maintenance.html"); err == nil {
		t.Fatal("fallback files visible from seed FS")
	}
}

func TestSeedSiteFS_PagesCarryMarkers(t *testing.T) {
	fsys, _ := SeedSiteFS()
	pages := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, "index.html") {
			return err
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		s := string(b)
		if !strings.Contains(s, "!{") {
			t.Errorf("%s has no secret markers", p)
		}
		if !strings.Contains(s, `class="cooked"`) && !strings.Contains(s, `class="excerpt"`) {
			t.Errorf("%s has no post containers", p)
		}
		pages++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if pages < 2 {
		t.Fatalf("pages = %d, want at least 2", pages)
	}
}
