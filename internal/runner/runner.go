// Package runner executes CWL documents step by step, routing every step
// through the replica controller so that logical file inputs resolve to
// physical replicas and step-produced catalog entries propagate to
// downstream steps.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/me/gridcwl/internal/controller"
	"github.com/me/gridcwl/internal/cwlexpr"
	"github.com/me/gridcwl/pkg/cwl"
)

// StepStatus is reported to the step hook at each phase transition.
type StepStatus string

const (
	StepRunning StepStatus = "Running"
	StepDone    StepStatus = "Done"
	StepFailed  StepStatus = "Failed"
	StepSkipped StepStatus = "Skipped"
)

// StepHook observes step lifecycle transitions. May be nil.
type StepHook func(stepName string, status StepStatus, err error)

// Options configures a workflow run.
type Options struct {
	// OutDir is the run output directory; each step gets a subdirectory.
	OutDir string
	// Parallel runs independent steps concurrently.
	Parallel bool
	// Jobs bounds concurrent steps when Parallel is set. 0 means
	// unlimited.
	Jobs int
}

// Runner drives one CWL document to completion.
type Runner struct {
	doc     Document
	baseDir string
	ctrl    *controller.Controller
	logger  *slog.Logger
	ev      *cwlexpr.Evaluator
	opts    Options
	hook    StepHook
}

// New creates a Runner for a loaded document. baseDir is the directory of
// the CWL file, used to resolve external tool references.
func New(doc Document, baseDir string, ctrl *controller.Controller, logger *slog.Logger, opts Options) *Runner {
	return &Runner{
		doc:     doc,
		baseDir: baseDir,
		ctrl:    ctrl,
		logger:  logger.With("component", "runner"),
		ev:      cwlexpr.NewEvaluator(),
		opts:    opts,
	}
}

// SetStepHook installs a lifecycle observer. Must be called before Execute.
func (r *Runner) SetStepHook(h StepHook) {
	r.hook = h
}

func (r *Runner) notify(step string, status StepStatus, err error) {
	if r.hook != nil {
		r.hook(step, status, err)
	}
}

// Execute runs the document with the given job inputs and returns the
// workflow outputs.
func (r *Runner) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	switch class := r.doc.Class(); class {
	case "CommandLineTool":
		return r.runTool(ctx, "tool", r.doc, inputs)
	case "Workflow":
		return r.runWorkflow(ctx, inputs)
	default:
		return nil, fmt.Errorf("unsupported document class %q", class)
	}
}

// runWorkflow executes all steps in dependency order and assembles the
// workflow outputs from step results.
func (r *Runner) runWorkflow(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	steps, err := r.doc.Steps(r.baseDir)
	if err != nil {
		return nil, err
	}
	dag, err := BuildDAG(steps)
	if err != nil {
		return nil, err
	}
	r.logger.Info("workflow plan ready", "steps", len(dag.Order), "parallel", r.opts.Parallel)

	// results holds step outputs keyed "step/output".
	results := make(map[string]any)
	var mu sync.Mutex

	runOne := func(id string) error {
		step := steps[id]
		mu.Lock()
		stepInputs, err := r.resolveStepInputs(step, inputs, results)
		mu.Unlock()
		if err != nil {
			return fmt.Errorf("step %s: %w", id, err)
		}

		if step.When != "" {
			run, err := r.ev.EvaluateBool(step.When, cwlexpr.NewContext(stepInputs))
			if err != nil {
				return fmt.Errorf("step %s: evaluate when: %w", id, err)
			}
			if !run {
				r.logger.Info("step skipped by when-condition", "step", id)
				r.notify(id, StepSkipped, nil)
				mu.Lock()
				for _, out := range step.Out {
					results[id+"/"+out] = nil
				}
				mu.Unlock()
				return nil
			}
		}

		outputs, err := r.runTool(ctx, id, step.Run, stepInputs)
		if err != nil {
			return fmt.Errorf("step %s: %w", id, err)
		}
		mu.Lock()
		for _, out := range step.Out {
			results[id+"/"+out] = outputs[out]
		}
		mu.Unlock()
		return nil
	}

	if r.opts.Parallel {
		if err := r.runParallel(ctx, dag, runOne); err != nil {
			return nil, err
		}
	} else {
		for _, id := range dag.Order {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := runOne(id); err != nil {
				return nil, err
			}
		}
	}

	outputs := make(map[string]any)
	for id, source := range r.doc.WorkflowOutputs() {
		if v, ok := results[source]; ok {
			outputs[id] = v
		} else if v, ok := inputs[source]; ok {
			outputs[id] = v
		}
	}
	return outputs, nil
}

// runParallel launches one goroutine per step. Each waits for its upstream
// dependencies, then takes a semaphore slot. The first step error cancels
// the rest.
func (r *Runner) runParallel(ctx context.Context, dag *DAGResult, runOne func(string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := NewSemaphore(r.opts.Jobs)
	done := make(map[string]chan struct{}, len(dag.Order))
	for _, id := range dag.Order {
		done[id] = make(chan struct{})
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, id := range dag.Order {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer close(done[id])

			for _, dep := range dag.Edges[id] {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					return
				}
			}
			if err := ctx.Err(); err != nil {
				return
			}
			if !sem.Acquire(ctx) {
				return
			}
			defer sem.Release()
			if err := runOne(id); err != nil {
				fail(err)
			}
		}(id)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// resolveStepInputs wires a step's declared inputs from workflow inputs and
// upstream step results.
func (r *Runner) resolveStepInputs(step Step, wfInputs map[string]any, results map[string]any) (map[string]any, error) {
	stepInputs := make(map[string]any, len(step.In))
	for id, si := range step.In {
		var value any
		switch {
		case si.Source == "":
			value = si.Default
		case strings.Contains(si.Source, "/"):
			v, ok := results[si.Source]
			if !ok {
				return nil, fmt.Errorf("input %s: unresolved source %s", id, si.Source)
			}
			value = v
		default:
			v, ok := wfInputs[si.Source]
			if !ok {
				value = si.Default
			} else {
				value = v
			}
		}
		if value == nil && si.Default != nil {
			value = si.Default
		}
		stepInputs[id] = value
	}
	return stepInputs, nil
}

// runTool executes one CommandLineTool invocation inside its own working
// directory, with the controller providing catalog scope, resolution and
// staging around the subprocess.
func (r *Runner) runTool(ctx context.Context, name string, tool Document, inputs map[string]any) (map[string]any, error) {
	workDir := filepath.Join(r.opts.OutDir, name)

	sctx, err := r.ctrl.OnStepReady(controller.Step{
		Name:    name,
		Inputs:  inputs,
		WorkDir: workDir,
	})
	if err != nil {
		r.notify(name, StepFailed, err)
		return nil, err
	}

	// Resolve and stage file inputs, then point File objects at the
	// paths the tool must actually open.
	sctx.Mapper.VisitAll(inputs)
	if err := sctx.Mapper.Materialize(ctx); err != nil {
		r.notify(name, StepFailed, err)
		return nil, err
	}
	cwl.WalkFiles(inputs, func(file map[string]any) {
		loc := cwl.FileLocation(file)
		if entry, ok := sctx.Mapper.Mapping(loc); ok {
			file["path"] = entry.Target
		}
	})

	ectx := cwlexpr.NewContext(inputs)
	ectx.OutDir = workDir

	cmd, err := BuildCommand(tool, inputs, r.ev, ectx)
	if err != nil {
		r.notify(name, StepFailed, err)
		return nil, err
	}
	if len(cmd) == 0 {
		err := fmt.Errorf("tool produced an empty command line")
		r.notify(name, StepFailed, err)
		return nil, err
	}

	r.notify(name, StepRunning, nil)
	stdoutPath, err := r.invoke(ctx, name, tool, cmd, workDir)
	if err != nil {
		r.notify(name, StepFailed, err)
		return nil, err
	}

	outputs, err := CollectOutputs(tool, sctx.FS, workDir, r.ev, ectx, stdoutPath)
	if err != nil {
		r.notify(name, StepFailed, err)
		return nil, err
	}

	if err := r.ctrl.OnStepComplete(sctx.Step, sctx); err != nil {
		r.notify(name, StepFailed, err)
		return nil, err
	}

	r.notify(name, StepDone, nil)
	return outputs, nil
}

// invoke runs the subprocess with stdout and stderr captured to files in
// the step working directory. Returns the stdout capture path.
func (r *Runner) invoke(ctx context.Context, name string, tool Document, argv []string, workDir string) (string, error) {
	stdoutName := name + ".out"
	if s, ok := tool["stdout"].(string); ok && s != "" {
		stdoutName = s
	}
	stdoutPath := filepath.Join(workDir, stdoutName)

	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return "", fmt.Errorf("create stdout capture: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(workDir, name+".err"))
	if err != nil {
		return "", fmt.Errorf("create stderr capture: %w", err)
	}
	defer stderr.Close()

	r.logger.Info("executing step command", "step", name, "argv", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command %s: %w", argv[0], err)
	}
	return stdoutPath, nil
}
