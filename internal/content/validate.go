package content

import (
	"io/fs"
	"strings"

	"github.com/keithlinneman/secretmark/internal/xerrors"
)

// ValidationOptions controls which checks ValidateSnapshot performs.
type ValidationOptions struct {
	// MinFiles rejects bundles with fewer files. 0 disables the check.
	MinFiles int

	// MinPages rejects bundles with fewer .html files. 0 disables the check.
	MinPages int

	// RequireSignature rejects bundles whose signature was not verified.
	RequireSignature bool
}

func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{MinFiles: 2, MinPages: 1}
}

// ValidateSnapshot sanity checks a bundle before it is swapped in and
// returns the first failure.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("validate: snapshot has nil filesystem")
	}
	if err := checkIndexHTML(snap.FS); err != nil {
		return err
	}

	if opts.MinFiles > 0 || opts.MinPages > 0 {
		files, pages, err := countFiles(snap.FS)
		if err != nil {
			return xerrors.Wrap(err, "validate: counting files")
		}
		if files < opts.MinFiles {
			return xerrors.Newf("validate: bundle has %d files, minimum is %d", files, opts.MinFiles)
		}
		if pages < opts.MinPages {
			return xerrors.Newf("validate: bundle has %d pages, minimum is %d", pages, opts.MinPages)
		}
	}

	if opts.RequireSignature && !snap.Meta.Signed {
		return xerrors.New("validate: bundle signature is required but was not verified")
	}
	return nil
}

func checkIndexHTML(fsys fs.FS) error {
	info, err := fs.Stat(fsys, "index.html")
	if err != nil {
		return xerrors.Wrap(err, "validate: index.html not found")
	}
	if info.IsDir() || info.Size() == 0 {
		return xerrors.New("validate: index.html is empty")
	}
	return nil
}

// countFiles returns the number of regular files and how many are HTML.
func countFiles(fsys fs.FS) (files, pages int, err error) {
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files++
		if strings.HasSuffix(p, ".html") {
			pages++
		}
		return nil
	})
	return files, pages, err
}
