// Package controller intercepts each executable workflow step to scope the
// replica catalog to that step's inputs, expose it through the path
// resolution and staging layers, and fold any replicas the step registered
// back into the global catalog afterwards.
package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/me/gridcwl/internal/fsaccess"
	"github.com/me/gridcwl/internal/pathmap"
	"github.com/me/gridcwl/pkg/cwl"
	"github.com/me/gridcwl/pkg/replica"
)

// CatalogFileName is the per-step catalog document written into each step's
// working directory before invocation and read back after it completes. The
// step's own subprocess may consume and extend it.
const CatalogFileName = "replica_catalog.json"

// Step is the unit of execution handed over by the workflow engine: a
// runnable leaf with its resolved inputs and a private working directory.
type Step struct {
	Name    string
	Inputs  map[string]any
	WorkDir string
}

// StepContext carries the bindings prepared for one step invocation. The
// engine's step runner must use these for all file access during the step.
type StepContext struct {
	Step       Step
	SubCatalog replica.Catalog
	FS         *fsaccess.FsAccess
	Mapper     *pathmap.PathMapper
}

// MergeObserver is notified after each merge of a step catalog into the
// global catalog. Used for status reporting; may be nil.
type MergeObserver func(stepName string, result replica.MergeResult)

// Controller owns the global replica catalog for the lifetime of one
// workflow run. The catalog is the only shared mutable state: reads take a
// snapshot, merges run inside a single critical section, and all file I/O
// happens outside the lock.
type Controller struct {
	mu       sync.Mutex
	global   replica.Catalog
	logger   *slog.Logger
	observer MergeObserver
}

// New creates a Controller with an empty catalog.
func New(logger *slog.Logger) *Controller {
	return &Controller{
		global: replica.New(),
		logger: logger.With("component", "controller"),
	}
}

// SetMergeObserver installs a merge notification hook. Must be called
// before steps start running.
func (c *Controller) SetMergeObserver(obs MergeObserver) {
	c.observer = obs
}

// Init loads the global catalog from path. A missing file starts the run
// with an empty catalog; a malformed one is fatal (replica.FormatError).
// Calling Init with an empty path skips loading.
func (c *Controller) Init(path string) error {
	if path == "" {
		c.logger.Debug("starting with empty replica catalog")
		return nil
	}

	cat, err := replica.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("no persisted catalog found, starting empty", "path", path)
		return nil
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.global = cat
	c.mu.Unlock()
	c.logger.Info("loaded replica catalog", "path", path, "entries", len(cat))
	return nil
}

// MergeCatalog folds an externally produced catalog (for example one built
// by an input dataset plugin) into the global catalog before steps run.
func (c *Controller) MergeCatalog(cat replica.Catalog) replica.MergeResult {
	c.mu.Lock()
	result := c.global.MergeFrom(cat)
	total := len(c.global)
	c.mu.Unlock()

	c.logger.Info("merged external catalog",
		"new", len(result.New), "updated", len(result.Updated), "total", total)
	return result
}

// Snapshot returns a point-in-time copy of the global catalog, safe to read
// while other steps merge.
func (c *Controller) Snapshot() replica.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global.Clone()
}

// Len returns the current number of catalog entries.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.global)
}

// OnStepReady prepares a step for execution: carves out the sub-catalog for
// the step's declared LFN inputs, writes it to the step's working directory
// and returns the resolver and staging bindings the step runner must use.
func (c *Controller) OnStepReady(step Step) (*StepContext, error) {
	lfns := cwl.ExtractLFNs(step.Inputs)

	var sub replica.Catalog
	if len(lfns) > 0 {
		sub = c.Snapshot().Filter(lfns)
		if len(sub) > 0 {
			c.logger.Info("found input files in replica catalog",
				"step", step.Name, "found", len(sub), "requested", len(lfns))
		}
		if len(sub) < len(lfns) {
			missing := make([]string, 0, len(lfns))
			for _, lfn := range lfns {
				if _, ok := sub[lfn]; !ok {
					missing = append(missing, lfn)
				}
			}
			c.logger.Warn("expected input files not found in replica catalog",
				"step", step.Name, "missing", missing)
		}
		if len(sub) == 0 {
			// The step will fail at the point of actual access, which
			// is easier to diagnose per-file than failing here.
			sub = replica.New()
		}
	} else {
		sub = replica.New()
	}

	if step.WorkDir == "" {
		return nil, fmt.Errorf("step %s has no working directory", step.Name)
	}
	if err := os.MkdirAll(step.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create step workdir: %w", err)
	}
	if err := sub.Save(filepath.Join(step.WorkDir, CatalogFileName)); err != nil {
		return nil, fmt.Errorf("write step catalog: %w", err)
	}

	stagedir := filepath.Join(step.WorkDir, "stage")
	return &StepContext{
		Step:       step,
		SubCatalog: sub,
		FS:         fsaccess.New(step.WorkDir, sub, c.logger),
		Mapper:     pathmap.New(sub, step.WorkDir, stagedir, c.logger),
	}, nil
}

// OnStepComplete reads back the step's catalog document and merges it into
// the global catalog. A missing document means the step registered nothing;
// that is not an error. Merge itself never fails.
func (c *Controller) OnStepComplete(step Step, _ *StepContext) error {
	path := filepath.Join(step.WorkDir, CatalogFileName)
	stepCat, err := replica.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("no step catalog to merge", "step", step.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read step catalog for %s: %w", step.Name, err)
	}

	c.mu.Lock()
	result := c.global.MergeFrom(stepCat)
	total := len(c.global)
	c.mu.Unlock()

	if len(result.New) > 0 {
		c.logger.Info("registered new output files",
			"step", step.Name, "new", len(result.New), "total", total)
	}
	for _, lfn := range result.Updated {
		// Step-local wins on conflict; observable, never raised.
		c.logger.Warn("catalog entry overridden by step", "step", step.Name, "lfn", lfn)
	}
	if len(result.Updated) > 0 {
		c.logger.Info("updated existing catalog entries",
			"step", step.Name, "updated", len(result.Updated))
	}

	if c.observer != nil {
		c.observer(step.Name, result)
	}
	return nil
}

// Finalize persists the catalog snapshot to path. Called on both the
// success and failure paths of a run; the write is best-effort and must not
// mask an execution error (the caller re-raises its own error afterwards).
func (c *Controller) Finalize(path string) error {
	snapshot := c.Snapshot()
	if err := snapshot.Save(path); err != nil {
		c.logger.Error("failed to persist final replica catalog", "path", path, "err", err)
		return err
	}
	c.logger.Info("persisted final replica catalog", "path", path, "entries", len(snapshot))
	return nil
}
