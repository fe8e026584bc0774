package inputgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/gridcwl/pkg/cwl"
	"github.com/me/gridcwl/pkg/replica"
)

// NoOpPlugin generates nothing. Fallback for workflows whose inputs are
// already fully specified.
type NoOpPlugin struct{}

func (p *NoOpPlugin) Name() string        { return "NoOp" }
func (p *NoOpPlugin) Description() string { return "does not generate inputs" }

func (p *NoOpPlugin) GenerateInputs(ctx context.Context, req Request) (Result, error) {
	return Result{}, nil
}

func (p *NoOpPlugin) FormatHintDisplay(config map[string]any) [][2]string {
	return nil
}

// LocalDirectoryPlugin builds inputs and a catalog from files in a local
// directory, standing in for an experiment bookkeeping query. Config keys:
//
//	directory  path to scan (required)
//	pattern    glob applied to file names, default "*"
//	parameter  workflow input the file list binds to, default "input_data"
type LocalDirectoryPlugin struct {
	logger *slog.Logger
}

func (p *LocalDirectoryPlugin) Name() string { return "LocalDirectory" }

func (p *LocalDirectoryPlugin) Description() string {
	return "builds inputs and catalog from a local directory"
}

func (p *LocalDirectoryPlugin) GenerateInputs(ctx context.Context, req Request) (Result, error) {
	dir, _ := req.Config["directory"].(string)
	if dir == "" {
		return Result{}, fmt.Errorf("LocalDirectory: config is missing directory")
	}
	pattern, _ := req.Config["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}
	parameter, _ := req.Config["parameter"].(string)
	if parameter == "" {
		parameter = "input_data"
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return Result{}, fmt.Errorf("LocalDirectory: bad pattern %q: %w", pattern, err)
	}

	type candidate struct {
		lfn  string
		path string
		size int64
	}
	var files []candidate
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, candidate{
			lfn:  filepath.Base(m),
			path: m,
			size: info.Size(),
		})
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("LocalDirectory: no files matched %s in %s", pattern, dir)
	}

	if req.PickSmallest {
		sort.Slice(files, func(i, j int) bool { return files[i].size < files[j].size })
	} else {
		sort.Slice(files, func(i, j int) bool { return files[i].lfn < files[j].lfn })
	}
	if req.NLFNs > 0 && len(files) > req.NLFNs {
		files = files[:req.NLFNs]
	}

	cat := replica.New()
	var fileList []any
	for _, f := range files {
		size := f.size
		cat[f.lfn] = replica.Entry{
			Replicas:  []replica.Replica{{URL: "file://" + f.path, SE: "Local"}},
			SizeBytes: &size,
		}
		fileList = append(fileList, map[string]any{
			"class":    "File",
			"location": cwl.LFNPrefix + f.lfn,
		})
	}

	stem := workflowStem(req.WorkflowPath)
	result := Result{
		InputsPath:  filepath.Join(req.OutputDir, stem+"-inputs.yml"),
		CatalogPath: filepath.Join(req.OutputDir, stem+"-replica-map.json"),
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("LocalDirectory: %w", err)
	}
	inputsDoc := map[string]any{parameter: fileList}
	data, err := yaml.Marshal(inputsDoc)
	if err != nil {
		return Result{}, fmt.Errorf("LocalDirectory: marshal inputs: %w", err)
	}
	if err := os.WriteFile(result.InputsPath, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("LocalDirectory: write inputs: %w", err)
	}
	if err := cat.Save(result.CatalogPath); err != nil {
		return Result{}, fmt.Errorf("LocalDirectory: write catalog: %w", err)
	}

	p.logger.Info("generated inputs from local directory",
		"directory", dir, "files", len(files), "inputs", result.InputsPath)
	return result, nil
}

func (p *LocalDirectoryPlugin) FormatHintDisplay(config map[string]any) [][2]string {
	var items [][2]string
	if dir, ok := config["directory"].(string); ok {
		items = append(items, [2]string{"Directory", dir})
	}
	if pattern, ok := config["pattern"].(string); ok {
		items = append(items, [2]string{"Pattern", pattern})
	}
	return items
}

// ExternalCommandPlugin shells out to an experiment-provided generator (the
// bookkeeping query tool), passing the workflow and output paths as
// arguments. Config keys:
//
//	command    argv list, required; the generator binary and fixed args
type ExternalCommandPlugin struct {
	logger *slog.Logger
}

func (p *ExternalCommandPlugin) Name() string { return "ExternalCommand" }

func (p *ExternalCommandPlugin) Description() string {
	return "runs an external generator command"
}

func (p *ExternalCommandPlugin) GenerateInputs(ctx context.Context, req Request) (Result, error) {
	rawCmd, ok := req.Config["command"].([]any)
	if !ok || len(rawCmd) == 0 {
		return Result{}, fmt.Errorf("ExternalCommand: config is missing command")
	}
	var argv []string
	for _, a := range rawCmd {
		s, ok := a.(string)
		if !ok {
			return Result{}, fmt.Errorf("ExternalCommand: command must be a list of strings")
		}
		argv = append(argv, s)
	}

	stem := workflowStem(req.WorkflowPath)
	result := Result{
		InputsPath:  filepath.Join(req.OutputDir, stem+"-inputs.yml"),
		CatalogPath: filepath.Join(req.OutputDir, stem+"-replica-map.json"),
	}

	argv = append(argv,
		req.WorkflowPath,
		"--output-yaml", result.InputsPath,
		"--output-map", result.CatalogPath,
	)
	if req.NLFNs > 0 {
		argv = append(argv, "--n-lfns", fmt.Sprint(req.NLFNs))
	}
	if req.PickSmallest {
		argv = append(argv, "--pick-smallest-lfn")
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ExternalCommand: %w", err)
	}

	p.logger.Info("running input generator", "argv", strings.Join(argv, " "))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ExternalCommand: generator failed: %w\n%s", err, out)
	}
	return result, nil
}

func (p *ExternalCommandPlugin) FormatHintDisplay(config map[string]any) [][2]string {
	if rawCmd, ok := config["command"].([]any); ok && len(rawCmd) > 0 {
		if s, ok := rawCmd[0].(string); ok {
			return [][2]string{{"Command", s}}
		}
	}
	return nil
}

// workflowStem returns the workflow file name without its extension, used
// to name generated files.
func workflowStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
