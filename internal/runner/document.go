package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Document is a loosely-typed CWL document. The runner only needs the
// subset of CWL that grid production workflows use: CommandLineTool and
// Workflow classes, v1.2 syntax.
type Document map[string]any

// LoadDocument reads and parses a CWL file.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CWL file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse CWL: %w", err)
	}
	return Document(doc), nil
}

// LoadInputs reads and parses a job inputs file. An empty path yields an
// empty input set.
func LoadInputs(path string) (map[string]any, error) {
	if path == "" {
		return make(map[string]any), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs file: %w", err)
	}
	var inputs map[string]any
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse inputs YAML: %w", err)
	}
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return inputs, nil
}

// Class returns the CWL class of the document.
func (d Document) Class() string {
	if v, ok := d["class"].(string); ok {
		return v
	}
	return ""
}

// CWLVersion returns the cwlVersion field.
func (d Document) CWLVersion() string {
	if v, ok := d["cwlVersion"].(string); ok {
		return v
	}
	return ""
}

// Hints returns the hints list of the document.
func (d Document) Hints() []map[string]any {
	raw, ok := d["hints"].([]any)
	if !ok {
		return nil
	}
	var hints []map[string]any
	for _, h := range raw {
		if m, ok := h.(map[string]any); ok {
			hints = append(hints, m)
		}
	}
	return hints
}

// Step describes one workflow step after normalization.
type Step struct {
	ID   string
	Run  Document          // inline tool document
	In   map[string]StepIn // step input wiring
	Out  []string          // exported output IDs
	When string            // conditional execution expression
}

// StepIn wires one step input to a workflow input or upstream step output.
type StepIn struct {
	Source  string
	Default any
}

// Steps normalizes the steps section (map or list form) of a Workflow.
func (d Document) Steps(baseDir string) (map[string]Step, error) {
	raw, ok := d["steps"]
	if !ok {
		return nil, fmt.Errorf("workflow has no steps")
	}

	steps := make(map[string]Step)
	switch s := raw.(type) {
	case map[string]any:
		for id, v := range s {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("step %s: not a mapping", id)
			}
			step, err := parseStep(id, m, baseDir)
			if err != nil {
				return nil, err
			}
			steps[id] = step
		}
	case []any:
		for i, v := range s {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("step %d: not a mapping", i)
			}
			id, _ := m["id"].(string)
			if id == "" {
				id = fmt.Sprintf("step_%d", i)
			}
			step, err := parseStep(id, m, baseDir)
			if err != nil {
				return nil, err
			}
			steps[id] = step
		}
	default:
		return nil, fmt.Errorf("unsupported steps form %T", raw)
	}
	return steps, nil
}

func parseStep(id string, m map[string]any, baseDir string) (Step, error) {
	step := Step{ID: id, In: make(map[string]StepIn)}

	switch run := m["run"].(type) {
	case map[string]any:
		step.Run = Document(run)
	case string:
		// External tool reference, resolved relative to the workflow file.
		tool, err := LoadDocument(filepath.Join(baseDir, run))
		if err != nil {
			return Step{}, fmt.Errorf("step %s: load tool %s: %w", id, run, err)
		}
		step.Run = tool
	default:
		return Step{}, fmt.Errorf("step %s: missing run", id)
	}

	if when, ok := m["when"].(string); ok {
		step.When = when
	}

	if in, ok := m["in"].(map[string]any); ok {
		for inputID, v := range in {
			switch val := v.(type) {
			case string:
				step.In[inputID] = StepIn{Source: val}
			case map[string]any:
				si := StepIn{}
				if src, ok := val["source"].(string); ok {
					si.Source = src
				}
				si.Default = val["default"]
				step.In[inputID] = si
			default:
				return Step{}, fmt.Errorf("step %s: unsupported in form for %s", id, inputID)
			}
		}
	}

	switch out := m["out"].(type) {
	case []any:
		for _, o := range out {
			if s, ok := o.(string); ok {
				step.Out = append(step.Out, s)
			} else if m, ok := o.(map[string]any); ok {
				if oid, ok := m["id"].(string); ok {
					step.Out = append(step.Out, oid)
				}
			}
		}
	}

	return step, nil
}

// WorkflowOutputs returns the workflow outputs section as id → outputSource.
func (d Document) WorkflowOutputs() map[string]string {
	outputs := make(map[string]string)
	raw, ok := d["outputs"].(map[string]any)
	if !ok {
		return outputs
	}
	for id, v := range raw {
		if m, ok := v.(map[string]any); ok {
			if src, ok := m["outputSource"].(string); ok {
				outputs[id] = src
			}
		}
	}
	return outputs
}
