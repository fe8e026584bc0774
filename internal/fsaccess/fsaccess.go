// Package fsaccess presents a uniform file-access interface over plain
// local paths, LFN references and bare remote URLs. LFN references are
// resolved through a replica catalog bound at construction time; each step
// of a workflow gets its own FsAccess bound to that step's sub-catalog.
package fsaccess

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/gridcwl/pkg/cwl"
	"github.com/me/gridcwl/pkg/replica"
)

// knownKeySample limits how many in-scope LFNs a ResolutionError names.
const knownKeySample = 5

// FsAccess resolves and serves file operations for one bound catalog.
type FsAccess struct {
	basedir string
	catalog replica.Catalog
	logger  *slog.Logger
}

// New creates an FsAccess with the given base directory for relative paths
// and the catalog to resolve LFN references against.
func New(basedir string, catalog replica.Catalog, logger *slog.Logger) *FsAccess {
	if catalog == nil {
		catalog = replica.New()
	}
	return &FsAccess{
		basedir: basedir,
		catalog: catalog,
		logger:  logger.With("component", "fsaccess"),
	}
}

// resolveLFN resolves an LFN reference to a location and remote flag.
// file-scheme replicas resolve to a bare filesystem path; anything else
// resolves to the replica URL unchanged.
func (f *FsAccess) resolveLFN(p string) (location string, remote bool, err error) {
	entry, ok := f.catalog.Lookup(p)
	if !ok {
		return "", false, f.resolutionError(p)
	}
	url, ok := entry.FirstURL()
	if !ok {
		return "", false, f.resolutionError(p)
	}

	scheme, path := cwl.ParseLocationScheme(url)
	if cwl.IsRemoteScheme(scheme) {
		return url, true, nil
	}
	if scheme == cwl.SchemeFile {
		return path, false, nil
	}
	return url, false, nil
}

func (f *FsAccess) resolutionError(p string) *ResolutionError {
	keys := f.catalog.Keys()
	if len(keys) > knownKeySample {
		keys = keys[:knownKeySample]
	}
	return &ResolutionError{LFN: cwl.StripLFN(p), Known: keys}
}

// abs makes a local path absolute relative to the base directory.
func (f *FsAccess) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.basedir, p)
}

// Exists checks whether a path is accessible. Remote locations (resolved or
// bare URLs) are assumed reachable without a network call; an unresolvable
// LFN does not exist.
func (f *FsAccess) Exists(p string) bool {
	if cwl.IsLFN(p) {
		loc, remote, err := f.resolveLFN(p)
		if err != nil {
			return false
		}
		if remote {
			return true
		}
		p = loc
	} else if cwl.IsRemoteURL(p) {
		return true
	}

	_, err := os.Stat(f.abs(p))
	return err == nil
}

// Open opens a path for reading. Remote locations fail with a
// RemoteAccessError; the executing tool must read such URLs with its own
// transport.
func (f *FsAccess) Open(p string) (io.ReadCloser, error) {
	if cwl.IsLFN(p) {
		loc, remote, err := f.resolveLFN(p)
		if err != nil {
			f.logger.Error("LFN resolution failed", "lfn", cwl.StripLFN(p), "err", err)
			return nil, err
		}
		if remote {
			return nil, &RemoteAccessError{URL: loc, Op: "open"}
		}
		p = loc
	} else if cwl.IsRemoteURL(p) {
		return nil, &RemoteAccessError{URL: p, Op: "open"}
	}

	return os.Open(f.abs(p))
}

// Size returns the size of a path in bytes. For LFNs the catalog's declared
// size_bytes is preferred; a remote replica without a declared size fails.
func (f *FsAccess) Size(p string) (int64, error) {
	if cwl.IsLFN(p) {
		if entry, ok := f.catalog.Lookup(p); ok && entry.SizeBytes != nil {
			return *entry.SizeBytes, nil
		}
		loc, remote, err := f.resolveLFN(p)
		if err != nil {
			return 0, err
		}
		if remote {
			return 0, &RemoteAccessError{URL: loc, Op: "size"}
		}
		p = loc
	} else if cwl.IsRemoteURL(p) {
		return 0, &RemoteAccessError{URL: p, Op: "size"}
	}

	info, err := os.Stat(f.abs(p))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// IsFile checks whether a path refers to a regular file. Remote replicas
// are assumed to be files.
func (f *FsAccess) IsFile(p string) bool {
	if cwl.IsLFN(p) {
		loc, remote, err := f.resolveLFN(p)
		if err != nil {
			return false
		}
		if remote {
			return true
		}
		p = loc
	} else if cwl.IsRemoteURL(p) {
		return true
	}

	info, err := os.Stat(f.abs(p))
	return err == nil && info.Mode().IsRegular()
}

// IsDir checks whether a path refers to a directory. An LFN never names a
// directory; neither does a bare remote URL.
func (f *FsAccess) IsDir(p string) bool {
	if cwl.IsLFN(p) || cwl.IsRemoteURL(p) {
		return false
	}
	info, err := os.Stat(f.abs(p))
	return err == nil && info.IsDir()
}

// Glob expands a pattern. An LFN cannot be globbed: the original reference
// is returned if it resolves to something assumed or known to exist,
// otherwise the result is empty.
func (f *FsAccess) Glob(pattern string) ([]string, error) {
	if cwl.IsLFN(pattern) {
		loc, remote, err := f.resolveLFN(pattern)
		if err != nil {
			return nil, nil
		}
		if remote {
			return []string{pattern}, nil
		}
		if _, err := os.Stat(loc); err == nil {
			return []string{pattern}, nil
		}
		return nil, nil
	}

	return filepath.Glob(f.abs(pattern))
}
