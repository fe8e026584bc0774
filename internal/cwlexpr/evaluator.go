// Package cwlexpr evaluates CWL parameter references and expressions with a
// JavaScript runtime (goja). The step runner uses it for output glob
// patterns, argument values and when-conditions.
package cwlexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Context carries the variables visible to an expression.
type Context struct {
	Inputs map[string]any
	Self   any
	OutDir string
	TmpDir string
}

// NewContext creates an evaluation context for the given step inputs.
func NewContext(inputs map[string]any) *Context {
	return &Context{Inputs: inputs}
}

// Evaluator evaluates CWL expressions.
type Evaluator struct{}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) setupVM(ctx *Context) (*goja.Runtime, error) {
	vm := goja.New()
	if err := vm.Set("inputs", ctx.Inputs); err != nil {
		return nil, fmt.Errorf("set inputs: %w", err)
	}
	if err := vm.Set("self", ctx.Self); err != nil {
		return nil, fmt.Errorf("set self: %w", err)
	}
	runtimeMap := map[string]any{
		"outdir": ctx.OutDir,
		"tmpdir": ctx.TmpDir,
	}
	if err := vm.Set("runtime", runtimeMap); err != nil {
		return nil, fmt.Errorf("set runtime: %w", err)
	}
	return vm, nil
}

// Evaluate evaluates an expression string. Literals pass through unchanged;
// a string that is exactly one $(...) reference returns the typed value;
// embedded references are interpolated into the surrounding text.
func (e *Evaluator) Evaluate(expr string, ctx *Context) (any, error) {
	matches := findExpressions(expr)
	if len(matches) == 0 {
		return strings.ReplaceAll(expr, "\\$(", "$("), nil
	}

	vm, err := e.setupVM(ctx)
	if err != nil {
		return nil, err
	}

	// Sole expression: preserve the evaluated type.
	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(expr) {
		return e.run(vm, matches[0].code)
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(expr[last:m.start])
		val, err := e.run(vm, m.code)
		if err != nil {
			return nil, err
		}
		out.WriteString(toString(val))
		last = m.end
	}
	out.WriteString(expr[last:])
	return strings.ReplaceAll(out.String(), "\\$(", "$("), nil
}

// EvaluateString evaluates an expression and renders the result as a string.
func (e *Evaluator) EvaluateString(expr string, ctx *Context) (string, error) {
	val, err := e.Evaluate(expr, ctx)
	if err != nil {
		return "", err
	}
	return toString(val), nil
}

// EvaluateBool evaluates an expression expected to yield a boolean.
func (e *Evaluator) EvaluateBool(expr string, ctx *Context) (bool, error) {
	val, err := e.Evaluate(expr, ctx)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q yielded %T, want bool", expr, val)
	}
	return b, nil
}

func (e *Evaluator) run(vm *goja.Runtime, code string) (any, error) {
	// Object literals need parentheses to parse as expressions.
	if strings.HasPrefix(strings.TrimSpace(code), "{") {
		code = "(" + code + ")"
	}
	val, err := vm.RunString(code)
	if err != nil {
		return nil, fmt.Errorf("expression error in $(%s): %w", code, err)
	}
	if val == goja.Undefined() {
		return nil, fmt.Errorf("expression $(%s) returned undefined", code)
	}
	return val.Export(), nil
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type exprMatch struct {
	start, end int
	code       string
}

// findExpressions locates unescaped $(...) references, matching nested
// parentheses.
func findExpressions(s string) []exprMatch {
	var matches []exprMatch
	for i := 0; i < len(s)-1; {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
				j++
			}
			if depth == 0 {
				matches = append(matches, exprMatch{start: i, end: j, code: s[i+2 : j-1]})
				i = j
				continue
			}
		}
		i++
	}
	return matches
}
