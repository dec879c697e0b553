package transform

import (
	"fmt"

	"benchml/internal/matrix"
)

// Inputs are the resolved input values handed to an Impl, keyed by formal name.
type Inputs map[string]any

// Literal marks a string input value that must not be parsed as a port reference.
type Literal struct{ V any }

// Lit wraps v as a literal input.
func Lit(v any) Literal { return Literal{V: v} }

func (in Inputs) Get(name string) (any, error) {
	v, ok := in[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrMissingInput)
	}
	return v, nil
}

func (in Inputs) Has(name string) bool {
	_, ok := in[name]
	return ok
}

// Dense returns the named input as a matrix.
func (in Inputs) Dense(name string) (*matrix.Dense, error) {
	v, err := in.Get(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*matrix.Dense)
	if !ok {
		return nil, fmt.Errorf("%q is %T, want *matrix.Dense: %w", name, v, ErrInputType)
	}
	return m, nil
}

// Floats returns the named input as a float slice.
func (in Inputs) Floats(name string) ([]float64, error) {
	v, err := in.Get(name)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []float64:
		return x, nil
	case []any:
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := toFloat(e)
			if !ok {
				return nil, fmt.Errorf("%q[%d] is %T: %w", name, i, e, ErrInputType)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%q is %T, want []float64: %w", name, v, ErrInputType)
	}
}

// Float returns the named scalar input.
func (in Inputs) Float(name string) (float64, error) {
	v, err := in.Get(name)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%q is %T, want number: %w", name, v, ErrInputType)
	}
	return f, nil
}

// DenseList returns the named input as per-sample matrices.
func (in Inputs) DenseList(name string) ([]*matrix.Dense, error) {
	v, err := in.Get(name)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []*matrix.Dense:
		return x, nil
	case []any:
		out := make([]*matrix.Dense, len(x))
		for i, e := range x {
			m, ok := e.(*matrix.Dense)
			if !ok {
				return nil, fmt.Errorf("%q[%d] is %T: %w", name, i, e, ErrInputType)
			}
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%q is %T, want []*matrix.Dense: %w", name, v, ErrInputType)
	}
}

// Meta returns the named input as a metadata mapping.
func (in Inputs) Meta(name string) (map[string]any, error) {
	v, err := in.Get(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%q is %T, want map: %w", name, v, ErrInputType)
	}
	return m, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	default:
		return 0, false
	}
}
