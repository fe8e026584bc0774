package runner

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/me/gridcwl/internal/cwlexpr"
	"github.com/me/gridcwl/pkg/cwl"
)

// boundArg is one tool argument with its sort key.
type boundArg struct {
	position int
	key      string // tie-break: input ID, empty for arguments
	tokens   []string
}

// BuildCommand assembles the command line for a CommandLineTool from its
// baseCommand, arguments and bound inputs, CWL v1.2 ordering rules.
func BuildCommand(tool Document, inputs map[string]any, ev *cwlexpr.Evaluator, ectx *cwlexpr.Context) ([]string, error) {
	var cmd []string

	switch base := tool["baseCommand"].(type) {
	case string:
		cmd = append(cmd, base)
	case []any:
		for _, b := range base {
			if s, ok := b.(string); ok {
				cmd = append(cmd, s)
			}
		}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported baseCommand form %T", base)
	}

	var bound []boundArg

	if args, ok := tool["arguments"].([]any); ok {
		for i, a := range args {
			switch arg := a.(type) {
			case string:
				v, err := ev.EvaluateString(arg, ectx)
				if err != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				bound = append(bound, boundArg{position: 0, tokens: []string{v}})
			case map[string]any:
				pos := intField(arg, "position")
				valueFrom, _ := arg["valueFrom"].(string)
				v, err := ev.EvaluateString(valueFrom, ectx)
				if err != nil {
					return nil, fmt.Errorf("argument %d: %w", i, err)
				}
				tokens := []string{v}
				if prefix, ok := arg["prefix"].(string); ok {
					tokens = append([]string{prefix}, tokens...)
				}
				bound = append(bound, boundArg{position: pos, tokens: tokens})
			}
		}
	}

	inputDefs, err := normalizeInputs(tool)
	if err != nil {
		return nil, err
	}
	for id, def := range inputDefs {
		binding, ok := def["inputBinding"].(map[string]any)
		if !ok {
			continue
		}
		value, ok := inputs[id]
		if !ok || value == nil {
			value = def["default"]
		}
		if value == nil {
			continue
		}
		tokens, err := bindValue(value, binding)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", id, err)
		}
		if len(tokens) == 0 {
			continue
		}
		bound = append(bound, boundArg{
			position: intField(binding, "position"),
			key:      id,
			tokens:   tokens,
		})
	}

	sort.SliceStable(bound, func(i, j int) bool {
		if bound[i].position != bound[j].position {
			return bound[i].position < bound[j].position
		}
		return bound[i].key < bound[j].key
	})

	for _, b := range bound {
		cmd = append(cmd, b.tokens...)
	}
	return cmd, nil
}

// normalizeInputs returns the tool inputs section as id → definition,
// accepting both map and list forms.
func normalizeInputs(tool Document) (map[string]map[string]any, error) {
	defs := make(map[string]map[string]any)
	switch in := tool["inputs"].(type) {
	case map[string]any:
		for id, v := range in {
			switch def := v.(type) {
			case map[string]any:
				defs[id] = def
			case string:
				// Shorthand: id: type
				defs[id] = map[string]any{"type": def}
			default:
				return nil, fmt.Errorf("input %s: unsupported form %T", id, v)
			}
		}
	case []any:
		for i, v := range in {
			def, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("input %d: not a mapping", i)
			}
			id, _ := def["id"].(string)
			if id == "" {
				return nil, fmt.Errorf("input %d: missing id", i)
			}
			defs[id] = def
		}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported inputs form %T", in)
	}
	return defs, nil
}

// bindValue renders one input value into command tokens per its binding.
func bindValue(value any, binding map[string]any) ([]string, error) {
	prefix, _ := binding["prefix"].(string)
	separate := true
	if sep, ok := binding["separate"].(bool); ok {
		separate = sep
	}

	switch cwl.Classify(value) {
	case cwl.KindList:
		list := value.([]any)
		if sep, ok := binding["itemSeparator"].(string); ok {
			joined := ""
			for i, item := range list {
				if i > 0 {
					joined += sep
				}
				joined += stringify(item)
			}
			return withPrefix(prefix, separate, joined), nil
		}
		var tokens []string
		for _, item := range list {
			tokens = append(tokens, withPrefix(prefix, separate, stringify(item))...)
		}
		return tokens, nil
	case cwl.KindScalar:
		if b, ok := value.(bool); ok {
			// Boolean flags emit the bare prefix when true.
			if b && prefix != "" {
				return []string{prefix}, nil
			}
			return nil, nil
		}
		return withPrefix(prefix, separate, stringify(value)), nil
	case cwl.KindFile, cwl.KindDirectory:
		return withPrefix(prefix, separate, stringify(value)), nil
	default:
		return nil, fmt.Errorf("cannot bind value of type %T", value)
	}
}

func withPrefix(prefix string, separate bool, value string) []string {
	if prefix == "" {
		return []string{value}
	}
	if separate {
		return []string{prefix, value}
	}
	return []string{prefix + value}
}

// stringify renders a single value as a command token. Files and
// directories render as their path.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		if p, ok := val["path"].(string); ok {
			return p
		}
		if l, ok := val["location"].(string); ok {
			return l
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
