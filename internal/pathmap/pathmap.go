// Package pathmap builds the file-staging plan for one workflow step. For
// each input File reference it decides whether the file is copied into the
// step's working area or exposed in place (catalog-resolved paths and
// remote URLs are never staged), and it annotates size and checksum
// metadata from the catalog where available.
package pathmap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/gridcwl/pkg/cwl"
	"github.com/me/gridcwl/pkg/replica"
)

// Entry describes how one file reference is exposed to the executing tool.
type Entry struct {
	// Resolved is the physical location: a local path or a remote URL.
	Resolved string
	// Target is the path or URL the tool should use. Equal to Resolved
	// for unstaged files; a path inside the staging area otherwise.
	Target string
	// Staged marks files that are copied into the step working area.
	Staged bool
}

// PathMapper computes and applies the staging plan for one step.
type PathMapper struct {
	catalog  replica.Catalog
	basedir  string
	stagedir string
	logger   *slog.Logger
	entries  map[string]Entry // keyed by the original location string
}

// New creates a PathMapper bound to a step's sub-catalog and staging
// directory.
func New(catalog replica.Catalog, basedir, stagedir string, logger *slog.Logger) *PathMapper {
	if catalog == nil {
		catalog = replica.New()
	}
	return &PathMapper{
		catalog:  catalog,
		basedir:  basedir,
		stagedir: stagedir,
		logger:   logger.With("component", "pathmap"),
		entries:  make(map[string]Entry),
	}
}

// VisitAll processes every File reference reachable from the step inputs,
// secondary files included.
func (m *PathMapper) VisitAll(inputs map[string]any) {
	cwl.WalkFiles(inputs, m.Visit)
}

// Visit processes a single File object, recording its staging decision and
// annotating catalog metadata onto the object.
func (m *PathMapper) Visit(file map[string]any) {
	location := cwl.FileLocation(file)
	if location == "" {
		return
	}

	switch {
	case cwl.IsLFN(location):
		m.visitLFN(location, file)
	case cwl.IsRemoteURL(location):
		// Bare remote URL: expose directly, rely on the tool's own
		// transport (xrootd- or https-capable reader).
		m.logger.Info("using remote URL directly", "url", location)
		m.record(location, Entry{Resolved: location, Target: location})
	default:
		m.visitLocal(location)
	}
}

func (m *PathMapper) visitLFN(location string, file map[string]any) {
	lfn := cwl.StripLFN(location)

	entry, ok := m.catalog.Lookup(lfn)
	if !ok {
		// Very likely a fatal misconfiguration for the step, but the
		// step itself is the right place to fail, per-file.
		m.logger.Error("LFN not in catalog; step will fail at access time",
			"lfn", lfn, "known", m.catalog.Keys())
		m.record(location, Entry{Resolved: location, Target: location})
		return
	}

	pfn, ok := entry.FirstURL()
	if !ok {
		m.logger.Error("LFN has no replicas attached", "lfn", lfn)
		m.record(location, Entry{Resolved: location, Target: location})
		return
	}

	scheme, path := cwl.ParseLocationScheme(pfn)
	resolved := pfn
	if !cwl.IsRemoteScheme(scheme) {
		resolved = path
	}
	m.logger.Info("resolved LFN", "lfn", lfn, "pfn", resolved)

	// Catalog-resolved files are used in place, never staged.
	m.record(location, Entry{Resolved: resolved, Target: resolved})
	annotate(file, entry)
}

func (m *PathMapper) visitLocal(location string) {
	_, path := cwl.ParseLocationScheme(location)
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.basedir, path)
	}
	target := filepath.Join(m.stagedir, filepath.Base(path))
	m.record(location, Entry{Resolved: path, Target: target, Staged: true})
}

func (m *PathMapper) record(location string, e Entry) {
	m.entries[location] = e
}

// Mapping returns the staging decision for an original location string.
func (m *PathMapper) Mapping(location string) (Entry, bool) {
	e, ok := m.entries[location]
	return e, ok
}

// Entries returns the full staging plan keyed by original location.
func (m *PathMapper) Entries() map[string]Entry {
	return m.entries
}

// Materialize applies the plan: staged files are copied into the staging
// directory. Unstaged entries are untouched.
func (m *PathMapper) Materialize(ctx context.Context) error {
	for location, e := range m.entries {
		if !e.Staged {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(e.Resolved, e.Target); err != nil {
			return fmt.Errorf("stage %s: %w", location, err)
		}
		m.logger.Debug("staged file", "src", e.Resolved, "dst", e.Target)
	}
	return nil
}

// annotate attaches declared size and checksum from a catalog entry onto a
// File object, without overwriting values already present.
func annotate(file map[string]any, entry replica.Entry) {
	if entry.SizeBytes != nil {
		if _, ok := file["size"]; !ok {
			file["size"] = *entry.SizeBytes
		}
	}
	if entry.Checksum != nil && entry.Checksum.Adler32 != "" {
		if _, ok := file["checksum"]; !ok {
			file["checksum"] = "adler32$" + entry.Checksum.Adler32
		}
	}
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
