package transform

import (
	"fmt"
	"slices"

	"benchml/internal/matrix"
)

// SliceStream returns the node's stream restricted to the samples in idx.
// Sample fields are row-sliced, kernel fields are sliced on both axes and
// other fields are passed through.
func (t *Transform) SliceStream(idx []int) (map[string]any, error) {
	out := t.stream.Snapshot()
	for k, v := range out {
		var err error
		switch {
		case slices.Contains(t.ports.StreamSamples, k):
			out[k], err = SliceSamples(v, idx)
		case slices.Contains(t.ports.StreamKernel, k):
			out[k], err = SliceKernel(v, idx)
		}
		if err != nil {
			return nil, fmt.Errorf("transform %s: %s: %w", t.tag, k, err)
		}
	}
	return out, nil
}

// SliceSamples selects the rows in idx from a per-sample value.
func SliceSamples(v any, idx []int) (any, error) {
	switch x := v.(type) {
	case *matrix.Dense:
		return x.SelectRows(idx), nil
	case []*matrix.Dense:
		return pick(x, idx), nil
	case []float64:
		return pick(x, idx), nil
	case []any:
		return pick(x, idx), nil
	default:
		return nil, fmt.Errorf("cannot slice %T by sample: %w", v, ErrInputType)
	}
}

// SliceKernel selects idx×idx from a square kernel.
func SliceKernel(v any, idx []int) (any, error) {
	m, ok := v.(*matrix.Dense)
	if !ok {
		return nil, fmt.Errorf("cannot slice %T as kernel: %w", v, ErrInputType)
	}
	return m.Select(idx, idx), nil
}

func pick[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = s[i]
	}
	return out
}
