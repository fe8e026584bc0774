package runner

import (
	"strings"
	"testing"
)

func TestBuildDAGLinearOrder(t *testing.T) {
	steps := map[string]Step{
		"simulate": {ID: "simulate"},
		"digitize": {ID: "digitize", In: map[string]StepIn{
			"sim": {Source: "simulate/events"},
		}},
		"reconstruct": {ID: "reconstruct", In: map[string]StepIn{
			"digi": {Source: "digitize/hits"},
		}},
	}

	dag, err := BuildDAG(steps)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	want := []string{"simulate", "digitize", "reconstruct"}
	if len(dag.Order) != len(want) {
		t.Fatalf("order = %v, want %v", dag.Order, want)
	}
	for i, id := range want {
		if dag.Order[i] != id {
			t.Errorf("order[%d] = %s, want %s", i, dag.Order[i], id)
		}
	}
	if deps := dag.Edges["reconstruct"]; len(deps) != 1 || deps[0] != "digitize" {
		t.Errorf("reconstruct deps = %v, want [digitize]", deps)
	}
}

func TestBuildDAGIndependentStepsSorted(t *testing.T) {
	steps := map[string]Step{
		"b": {ID: "b"},
		"a": {ID: "a"},
		"c": {ID: "c"},
	}
	dag, err := BuildDAG(steps)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	if got := strings.Join(dag.Order, ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
}

func TestBuildDAGWorkflowInputsCreateNoEdges(t *testing.T) {
	steps := map[string]Step{
		"process": {ID: "process", In: map[string]StepIn{
			"data": {Source: "input_files"},
		}},
	}
	dag, err := BuildDAG(steps)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	if len(dag.Edges["process"]) != 0 {
		t.Errorf("unexpected deps: %v", dag.Edges["process"])
	}
}

func TestBuildDAGDetectsCycle(t *testing.T) {
	steps := map[string]Step{
		"x": {ID: "x", In: map[string]StepIn{"in": {Source: "y/out"}}},
		"y": {ID: "y", In: map[string]StepIn{"in": {Source: "x/out"}}},
	}
	if _, err := BuildDAG(steps); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestBuildDAGSelfLoop(t *testing.T) {
	steps := map[string]Step{
		"x": {ID: "x", In: map[string]StepIn{"in": {Source: "x/out"}}},
	}
	if _, err := BuildDAG(steps); err == nil {
		t.Fatal("expected cycle error for self-loop")
	}
}
