// Package sandbox moves job sandboxes between the submitting host and a
// sandbox store. A sandbox is a gzipped tar of the job's auxiliary files,
// addressed by the checksum of its content so identical uploads
// deduplicate.
package sandbox

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RefPrefix marks a string as a sandbox reference.
const RefPrefix = "SB:"

const checksumAlgorithm = "sha256"

// Store persists sandbox archives.
type Store interface {
	// Upload stores the files as one archive and returns its reference.
	Upload(ctx context.Context, paths []string) (string, error)
	// Download extracts the referenced archive into destination.
	Download(ctx context.Context, ref, destination string) error
}

// IsRef reports whether s is a sandbox reference.
func IsRef(s string) bool {
	return strings.HasPrefix(s, RefPrefix)
}

// pfnFromRef validates a reference and returns the store object name.
func pfnFromRef(ref string) (string, error) {
	if !IsRef(ref) {
		return "", fmt.Errorf("not a sandbox reference: %s", ref)
	}
	pfn := strings.TrimPrefix(ref, RefPrefix)
	if !strings.HasPrefix(pfn, checksumAlgorithm+":") {
		return "", fmt.Errorf("unsupported sandbox checksum in %s", ref)
	}
	return pfn, nil
}

// buildArchive writes a gzipped tar of the given files to w. Each file is
// added under its base name; directories recurse.
func buildArchive(w io.Writer, paths []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if err := addPath(tw, abs, filepath.Base(abs)); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addPath(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name + "/"
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := addPath(tw, filepath.Join(path, e.Name()), name+"/"+e.Name()); err != nil {
				return err
			}
		}
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// extractArchive unpacks a gzipped tar from r into destination, rejecting
// paths that escape it.
func extractArchive(r io.Reader, destination string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target := filepath.Join(destination, filepath.Clean("/"+hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(destination)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}

// archiveToTemp builds the archive in a temp file and returns the file
// (positioned at the start) together with its reference and size. The
// caller removes the file.
func archiveToTemp(paths []string) (*os.File, string, int64, error) {
	tmp, err := os.CreateTemp("", "sandbox-*.tar.gz")
	if err != nil {
		return nil, "", 0, err
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	hasher := sha256.New()
	if err := buildArchive(io.MultiWriter(tmp, hasher), paths); err != nil {
		cleanup()
		return nil, "", 0, err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		cleanup()
		return nil, "", 0, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, "", 0, err
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	ref := RefPrefix + checksumAlgorithm + ":" + checksum + ".tar.gz"
	return tmp, ref, size, nil
}
