package runner

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/gridcwl/internal/cwlexpr"
	"github.com/me/gridcwl/internal/fsaccess"
)

// CollectOutputs evaluates the tool's output bindings against the step work
// directory. Globs run through the catalog-aware file access layer so that
// logical file references in glob patterns behave per the resolution rules.
func CollectOutputs(tool Document, fs *fsaccess.FsAccess, workDir string, ev *cwlexpr.Evaluator, ectx *cwlexpr.Context, stdoutPath string) (map[string]any, error) {
	results := make(map[string]any)

	defs, err := normalizeOutputs(tool)
	if err != nil {
		return nil, err
	}

	for id, def := range defs {
		typ := typeName(def["type"])

		if typ == "stdout" {
			if stdoutPath == "" {
				return nil, fmt.Errorf("output %s: no stdout captured", id)
			}
			file, err := fileEntry(fs, stdoutPath)
			if err != nil {
				return nil, fmt.Errorf("output %s: %w", id, err)
			}
			results[id] = file
			continue
		}

		binding, ok := def["outputBinding"].(map[string]any)
		if !ok {
			continue
		}

		matches, err := evalGlob(binding, fs, workDir, ev, ectx)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", id, err)
		}

		var files []any
		for _, m := range matches {
			file, err := fileEntry(fs, m)
			if err != nil {
				return nil, fmt.Errorf("output %s: %w", id, err)
			}
			files = append(files, file)
		}

		if strings.HasSuffix(typ, "[]") || typ == "array" {
			if files == nil {
				files = []any{}
			}
			results[id] = files
			continue
		}
		switch len(files) {
		case 0:
			if !strings.HasSuffix(typ, "?") {
				return nil, fmt.Errorf("output %s: no file matched glob", id)
			}
			results[id] = nil
		case 1:
			results[id] = files[0]
		default:
			return nil, fmt.Errorf("output %s: glob matched %d files for single File output", id, len(files))
		}
	}

	return results, nil
}

func evalGlob(binding map[string]any, fs *fsaccess.FsAccess, workDir string, ev *cwlexpr.Evaluator, ectx *cwlexpr.Context) ([]string, error) {
	var patterns []string
	switch g := binding["glob"].(type) {
	case string:
		patterns = append(patterns, g)
	case []any:
		for _, p := range g {
			if s, ok := p.(string); ok {
				patterns = append(patterns, s)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported glob form %T", g)
	}

	var matches []string
	for _, pattern := range patterns {
		expanded, err := ev.EvaluateString(pattern, ectx)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if !filepath.IsAbs(expanded) && !strings.Contains(expanded, "://") {
			expanded = filepath.Join(workDir, expanded)
		}
		found, err := fs.Glob(expanded)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		matches = append(matches, found...)
	}
	sort.Strings(matches)
	return matches, nil
}

// fileEntry builds a CWL File value for a collected output path.
func fileEntry(fs *fsaccess.FsAccess, path string) (map[string]any, error) {
	file := map[string]any{
		"class":    "File",
		"path":     path,
		"location": path,
		"basename": filepath.Base(path),
	}
	if size, err := fs.Size(path); err == nil {
		file["size"] = size
	}
	return file, nil
}

func normalizeOutputs(tool Document) (map[string]map[string]any, error) {
	defs := make(map[string]map[string]any)
	switch out := tool["outputs"].(type) {
	case map[string]any:
		for id, v := range out {
			switch def := v.(type) {
			case map[string]any:
				defs[id] = def
			case string:
				defs[id] = map[string]any{"type": def}
			default:
				return nil, fmt.Errorf("output %s: unsupported form %T", id, v)
			}
		}
	case []any:
		for i, v := range out {
			def, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("output %d: not a mapping", i)
			}
			id, _ := def["id"].(string)
			if id == "" {
				return nil, fmt.Errorf("output %d: missing id", i)
			}
			defs[id] = def
		}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported outputs form %T", out)
	}
	return defs, nil
}

// typeName flattens a CWL type declaration to a comparable string.
// ["null", "File"] becomes "File?", {type: array, items: File} becomes
// "File[]".
func typeName(t any) string {
	switch typ := t.(type) {
	case string:
		return typ
	case []any:
		optional := false
		var name string
		for _, item := range typ {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s == "null" {
				optional = true
			} else {
				name = s
			}
		}
		if optional && name != "" {
			return name + "?"
		}
		return name
	case map[string]any:
		if tt, _ := typ["type"].(string); tt == "array" {
			if items, ok := typ["items"].(string); ok {
				return items + "[]"
			}
			return "array"
		}
	}
	return ""
}
