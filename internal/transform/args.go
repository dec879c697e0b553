package transform

import (
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Args are the static arguments of a transform, keyed by name.
type Args map[string]any

// Clone returns a deep copy; nested maps and slices are not shared.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

// Names returns the argument names in sorted order.
func (a Args) Names() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decode copies the arguments into out, a pointer to a struct with
// mapstructure tags. Numeric and string conversions are weakly typed so YAML
// ints land in float fields.
func (a Args) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(a))
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = cloneValue(vv)
		}
		return m
	case Args:
		return x.Clone()
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), x...)
	case []float64:
		return append([]float64(nil), x...)
	case []int:
		return append([]int(nil), x...)
	default:
		return v
	}
}
