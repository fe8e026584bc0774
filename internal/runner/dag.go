package runner

import (
	"fmt"
	"sort"
	"strings"
)

// DAGResult holds the result of DAG analysis.
type DAGResult struct {
	// Edges maps each step ID to the step IDs it depends on (upstream).
	Edges map[string][]string
	// Order is the topological sort of steps (execution order).
	Order []string
}

// BuildDAG constructs a directed acyclic graph from workflow step source
// references. It uses Kahn's algorithm for topological sort and cycle
// detection.
//
// Source "select/lfns" in a step's inputs creates an edge: select -> this
// step. Bare sources (workflow inputs like "data_files") create no edges.
func BuildDAG(steps map[string]Step) (*DAGResult, error) {
	stepIDs := make(map[string]bool, len(steps))
	for id := range steps {
		stepIDs[id] = true
	}

	// forward[A] = [B, C] means A must complete before B and C.
	// deps[B] = [A] means B depends on A.
	forward := make(map[string][]string, len(steps))
	deps := make(map[string][]string, len(steps))
	inDegree := make(map[string]int, len(steps))

	for id := range steps {
		inDegree[id] = 0
	}

	for stepID, step := range steps {
		seen := make(map[string]bool)
		for _, si := range step.In {
			source := si.Source
			if source == "" || !strings.Contains(source, "/") {
				continue
			}
			depID := strings.SplitN(source, "/", 2)[0]
			if depID == stepID {
				return nil, fmt.Errorf("workflow contains a cycle involving steps: %s", stepID)
			}
			if stepIDs[depID] && !seen[depID] {
				seen[depID] = true
				forward[depID] = append(forward[depID], stepID)
				deps[stepID] = append(deps[stepID], depID)
				inDegree[stepID]++
			}
		}
	}

	for id := range deps {
		sort.Strings(deps[id])
	}

	// Kahn's algorithm: BFS topological sort.
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		successors := forward[node]
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(stepIDs) {
		var cycleNodes []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycleNodes = append(cycleNodes, id)
			}
		}
		sort.Strings(cycleNodes)
		return nil, fmt.Errorf("workflow contains a cycle involving steps: %s",
			strings.Join(cycleNodes, ", "))
	}

	return &DAGResult{
		Edges: deps,
		Order: order,
	}, nil
}
