package cwlexpr

import "testing"

func TestEvaluate_Literal(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("plain-name.txt", NewContext(nil))
	if err != nil || got != "plain-name.txt" {
		t.Errorf("Evaluate = (%v, %v)", got, err)
	}
}

func TestEvaluate_ParameterReference(t *testing.T) {
	e := NewEvaluator()
	ctx := NewContext(map[string]any{
		"sample": map[string]any{"basename": "reads.fq"},
		"count":  int64(3),
	})

	got, err := e.Evaluate("$(inputs.sample.basename)", ctx)
	if err != nil || got != "reads.fq" {
		t.Errorf("reference = (%v, %v)", got, err)
	}

	got, err = e.Evaluate("$(inputs.count * 2)", ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := got.(int64); !ok || n != 6 {
		t.Errorf("arithmetic = %v (%T)", got, got)
	}
}

func TestEvaluate_Interpolation(t *testing.T) {
	e := NewEvaluator()
	ctx := NewContext(map[string]any{"name": "run7"})
	ctx.OutDir = "/out"

	got, err := e.Evaluate("$(runtime.outdir)/$(inputs.name).log", ctx)
	if err != nil || got != "/out/run7.log" {
		t.Errorf("interpolation = (%v, %v)", got, err)
	}
}

func TestEvaluate_Escaped(t *testing.T) {
	e := NewEvaluator()
	got, err := e.Evaluate("\\$(not.a.reference)", NewContext(nil))
	if err != nil || got != "$(not.a.reference)" {
		t.Errorf("escaped = (%v, %v)", got, err)
	}
}

func TestEvaluateBool(t *testing.T) {
	e := NewEvaluator()
	ctx := NewContext(map[string]any{"n": int64(5)})

	b, err := e.EvaluateBool("$(inputs.n > 3)", ctx)
	if err != nil || !b {
		t.Errorf("EvaluateBool = (%v, %v)", b, err)
	}

	if _, err := e.EvaluateBool("$(inputs.n)", ctx); err == nil {
		t.Error("non-bool result should error")
	}
}

func TestEvaluate_Undefined(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.Evaluate("$(inputs.missing.field)", NewContext(map[string]any{})); err == nil {
		t.Error("invalid property access should error")
	}
}
