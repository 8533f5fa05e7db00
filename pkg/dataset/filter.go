package dataset

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over a record. Available variables:
// text (string, normalized), raw (string), rating (double), line (int).
//
// Examples:
//
//	rating >= 0.0 && rating <= 10.0
//	!text.contains("water")
//	size(text) > 3
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter compiles expr; it must evaluate to a bool.
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("raw", cel.StringType),
		cel.Variable("rating", cel.DoubleType),
		cel.Variable("line", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating filter env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must return bool, got %v", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building filter program: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

func (f *Filter) String() string { return f.expr }

// Match evaluates the filter for one record.
func (f *Filter) Match(r *Record) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"text":   r.Text,
		"raw":    r.Raw,
		"rating": r.Rating,
		"line":   int64(r.Line),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T", out.Value())
	}
	return b, nil
}
