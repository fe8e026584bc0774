// Package inputgen generates job inputs and replica catalogs for production
// workflows. A dirac:Production hint on the workflow names a plugin that
// queries an experiment data catalog (or a local stand-in) and writes an
// inputs file plus a catalog document for the run.
package inputgen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// HintClass is the CWL hint class that activates input generation.
const HintClass = "dirac:Production"

// Hint is the parsed dirac:Production hint.
type Hint struct {
	Plugin string
	Config map[string]any
}

// HintFromDocument extracts the production hint from a parsed CWL document.
// Returns nil when the document carries no such hint.
func HintFromDocument(doc map[string]any) *Hint {
	hints, ok := doc["hints"].([]any)
	if !ok {
		return nil
	}
	for _, h := range hints {
		m, ok := h.(map[string]any)
		if !ok || m["class"] != HintClass {
			continue
		}
		hint := &Hint{Config: make(map[string]any)}
		if p, ok := m["input_dataset_plugin"].(string); ok {
			hint.Plugin = p
		}
		if cfg, ok := m["input_dataset_config"].(map[string]any); ok {
			hint.Config = cfg
		}
		return hint
	}
	return nil
}

// Request carries everything a plugin needs for one generation run.
type Request struct {
	// WorkflowPath is the CWL file the inputs are generated for.
	WorkflowPath string
	// Config is the plugin-specific configuration from the hint.
	Config map[string]any
	// OutputDir receives the generated files.
	OutputDir string
	// NLFNs caps the number of LFNs included. 0 means no cap.
	NLFNs int
	// PickSmallest selects smallest files first when capping.
	PickSmallest bool
}

// Result names the generated files. Either path may be empty when the
// plugin produced nothing for that slot.
type Result struct {
	InputsPath  string
	CatalogPath string
}

// Plugin generates inputs and a replica catalog from an external data
// source.
type Plugin interface {
	// Name is the identifier the hint refers to.
	Name() string
	// Description is a one-line summary for CLI display.
	Description() string
	// GenerateInputs produces the inputs and catalog files.
	GenerateInputs(ctx context.Context, req Request) (Result, error)
	// FormatHintDisplay renders plugin config for CLI display.
	FormatHintDisplay(config map[string]any) [][2]string
}

// Registry holds the available plugins. Registration is explicit; there is
// no runtime discovery.
type Registry struct {
	plugins map[string]Plugin
	logger  *slog.Logger
}

// NewRegistry creates a registry preloaded with the built-in plugins.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		plugins: make(map[string]Plugin),
		logger:  logger.With("component", "inputgen"),
	}
	for _, p := range []Plugin{
		&NoOpPlugin{},
		&LocalDirectoryPlugin{logger: r.logger},
		&ExternalCommandPlugin{logger: r.logger},
	} {
		r.Register(p)
	}
	return r
}

// Register adds a plugin, replacing any previous one with the same name.
func (r *Registry) Register(p Plugin) {
	r.plugins[p.Name()] = p
	r.logger.Debug("registered input dataset plugin", "plugin", p.Name())
}

// Lookup returns the named plugin.
func (r *Registry) Lookup(name string) (Plugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("unknown input dataset plugin %q (available: %v)", name, r.Names())
	}
	return p, nil
}

// Names lists registered plugin names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate resolves the hint's plugin and runs it.
func (r *Registry) Generate(ctx context.Context, hint *Hint, req Request) (Result, error) {
	if hint == nil || hint.Plugin == "" {
		return Result{}, nil
	}
	p, err := r.Lookup(hint.Plugin)
	if err != nil {
		return Result{}, err
	}
	req.Config = hint.Config
	r.logger.Info("generating inputs", "plugin", hint.Plugin, "workflow", req.WorkflowPath)
	return p.GenerateInputs(ctx, req)
}
