package content

import (
	"archive/tar"
	"bytes"
	"io/fs"
	"strings"
	"testing"
)

func TestReadWithHash(t *testing.T) {
	data := []byte("bundle bytes")
	got, hash, err := readWithHash(bytes.NewReader(data), 64)
	if err != nil {
		t.Fatalf("readWithHash: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("data = %q", got)
	}
	if hash != sha256hex(data) {
		t.Fatalf("hash = %s, want %s", hash, sha256hex(data))
	}
}

func TestReadWithHash_Limits(t *testing.T) {
	if _, _, err := readWithHash(strings.NewReader("12345"), 5); err != nil {
		t.Fatalf("exactly at limit: %v", err)
	}
	if _, _, err := readWithHash(strings.NewReader("123456"), 5); err == nil {
		t.Fatal("expected error above limit")
	}
}

func TestExtractTarGzToMem_Files(t *testing.T) {
	fsys, err := extractTarGzToMem(makeTarGz(t, sitePages))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for name, want := range sitePages {
		got, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestExtractTarGzToMem_LeadingDotSlash(t *testing.T) {
	fsys, err := extractTarGzToMem(makeTarGz(t, map[string]string{"./index.html": "x"}))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestExtractTarGzToMem_RejectsBadPaths(t *testing.T) {
	for _, name := range []string{"../etc/passwd", "a/../../b", "/abs/path", `dir\file`} {
		t.Run(name, func(t *testing.T) {
			if _, err := extractTarGzToMem(makeTarGz(t, map[string]string{name: "x"})); err == nil {
				t.Fatalf("expected error for %q", name)
			}
		})
	}
}

func TestExtractTarGzToMem_RejectsSpecialTypes(t *testing.T) {
	for _, tf := range []byte{tar.TypeSymlink, tar.TypeLink, tar.TypeChar, tar.TypeBlock, tar.TypeFifo} {
		if _, err := extractTarGzToMem(makeTarGzWithType(t, "thing", tf)); err == nil {
			t.Errorf("typeflag %q: expected error", tf)
		}
	}
}

func TestExtractTarGzToMem_SkipsDirectories(t *testing.T) {
	fsys, err := extractTarGzToMem(makeTarGzWithType(t, "assets/", tar.TypeDir))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	n := 0
	fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, _ error) error {
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if n != 0 {
		t.Fatalf("files = %d, want 0", n)
	}
}

func TestExtractTarGzToMem_InvalidGzip(t *testing.T) {
	if _, err := extractTarGzToMem([]byte("not gzip")); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtractTarGzToMem_OversizedFile(t *testing.T) {
	big := strings.Repeat("a", int(maxSingleFile)+1)
	if _, err := extractTarGzToMem(makeTarGz(t, map[string]string{"big.bin": big})); err == nil {
		t.Fatal("expected error for oversized file")
	}
}

func TestArchivePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		bad  bool
	}{
		{"index.html", "index.html", false},
		{"./t/a/index.html", "t/a/index.html", false},
		{"a//b", "a/b", false},
		{".", "", false},
		{"./", "", false},
		{"..", "", true},
		{"x/../../y", "", true},
		{"/etc", "", true},
	}
	for _, tt := range tests {
		got, err := archivePath(tt.in)
		if tt.bad != (err != nil) {
			t.Errorf("archivePath(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("archivePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
