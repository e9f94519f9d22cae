package content

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"testing/fstest"

	"github.com/keithlinneman/secretmark/internal/xerrors"
)

const (
	// maxBundleSize caps the compressed bundle read from S3.
	maxBundleSize int64 = 50 * 1024 * 1024

	// maxSingleFile caps one extracted file.
	maxSingleFile int64 = 10 * 1024 * 1024

	// maxTotalExtract caps the sum of extracted files.
	maxTotalExtract int64 = 100 * 1024 * 1024

	// maxSignatureSize caps the detached signature object.
	maxSignatureSize int64 = 16 * 1024
)

// readWithHash reads r up to maxSize bytes and returns the data with its
// hex SHA-256.
func readWithHash(r io.Reader, maxSize int64) ([]byte, string, error) {
	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(io.LimitReader(r, maxSize+1), h))
	if err != nil {
		return nil, "", xerrors.Wrap(err, "read bundle")
	}
	if int64(len(data)) > maxSize {
		return nil, "", xerrors.Newf("bundle exceeds max size (limit %d bytes)", maxSize)
	}
	return data, hex.EncodeToString(h.Sum(nil)), nil
}

// archivePath cleans a tar member name. It returns "" for entries that
// should be skipped and an error for names that escape the root.
func archivePath(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if clean == "." || clean == "" {
		return "", nil
	}
	if path.IsAbs(clean) || strings.Contains(name, "\\") {
		return "", xerrors.Newf("absolute path in archive: %s", name)
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", xerrors.Newf("path traversal in archive: %s", name)
		}
	}
	if !fs.ValidPath(clean) {
		return "", xerrors.Newf("invalid path in archive: %s", name)
	}
	return clean, nil
}

// extractTarGzToMem unpacks a tar.gz into an in-memory filesystem.
// Only regular files and directories are accepted.
func extractTarGzToMem(data []byte) (fs.FS, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open gzip")
	}
	defer gr.Close()

	mfs := make(fstest.MapFS)
	tr := tar.NewReader(gr)
	var total int64

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "read tar header")
		}

		name, err := archivePath(hdr.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			if hdr.Size > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size (%d > %d)", name, hdr.Size, maxSingleFile)
			}
			body, err := io.ReadAll(io.LimitReader(tr, maxSingleFile+1))
			if err != nil {
				return nil, xerrors.Wrapf(err, "read %s", name)
			}
			if int64(len(body)) > maxSingleFile {
				return nil, xerrors.Newf("file %s exceeds max size after read", name)
			}
			total += int64(len(body))
			if total > maxTotalExtract {
				return nil, xerrors.Newf("total extracted size exceeds limit (max %d)", maxTotalExtract)
			}
			mfs[name] = &fstest.MapFile{Data: body, Mode: hdr.FileInfo().Mode().Perm()}
		default:
			return nil, xerrors.Newf("unsupported file type in archive: %s (type=%d)", name, hdr.Typeflag)
		}
	}

	return mfs, nil
}
