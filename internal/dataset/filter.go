package dataset

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// ErrFilter wraps compile and evaluation failures of a filter expression.
var ErrFilter = errors.New("dataset filter")

// Filter selects datasets by a boolean CEL expression over the variable
// meta, e.g. `meta.task == "regression" && "mae" in meta.metrics`.
type Filter struct {
	Expression string
	program    cel.Program
}

// NewFilter compiles expr. An empty expression keeps every dataset.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("meta", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrFilter, err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrFilter, expr, issues.Err())
	}
	p, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: program: %v", ErrFilter, err)
	}
	return &Filter{Expression: expr, program: p}, nil
}

// Match evaluates the expression against meta. A nil filter matches.
func (f *Filter) Match(meta map[string]any) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.program.Eval(map[string]any{"meta": meta})
	if err != nil {
		return false, fmt.Errorf("%w: eval %q: %v", ErrFilter, f.Expression, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q yields %T, want bool", ErrFilter, f.Expression, out.Value())
	}
	return b, nil
}
