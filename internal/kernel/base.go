package kernel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"benchml/internal/matrix"
)

// ErrUnknownBase is returned for a base kernel name nobody registered.
var ErrUnknownBase = errors.New("unknown base kernel")

// BaseFunc scores every row of xi against every row of xj; the result is
// len(xi)×len(xj).
type BaseFunc func(xi, xj *matrix.Dense) (*matrix.Dense, error)

var (
	baseMu sync.RWMutex
	bases  = map[string]BaseFunc{
		"dot":    matrix.MulT,
		"linear": matrix.MulT,
		"cosine": cosine,
	}
)

// RegisterBase adds or replaces a named base kernel.
func RegisterBase(name string, fn BaseFunc) {
	baseMu.Lock()
	bases[name] = fn
	baseMu.Unlock()
}

// Base looks up a base kernel by name.
func Base(name string) (BaseFunc, error) {
	baseMu.RLock()
	fn, ok := bases[name]
	baseMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownBase)
	}
	return fn, nil
}

// Bases lists the registered names.
func Bases() []string {
	baseMu.RLock()
	defer baseMu.RUnlock()
	out := make([]string, 0, len(bases))
	for k := range bases {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cosine(xi, xj *matrix.Dense) (*matrix.Dense, error) {
	return matrix.MulT(unitRows(xi), unitRows(xj))
}

func unitRows(x *matrix.Dense) *matrix.Dense {
	out := x.Clone()
	for i := 0; i < out.Rows(); i++ {
		matrix.Normalize(out.Row(i))
	}
	return out
}

// Pow raises every element of m to p in place. Integer powers use repeated
// multiplication so negative entries keep their sign for odd p.
func Pow(m *matrix.Dense, p float64) {
	if p == 1 {
		return
	}
	d := m.Data()
	if n := int(p); float64(n) == p && n > 0 {
		for i, v := range d {
			r := v
			for k := 1; k < n; k++ {
				r *= v
			}
			d[i] = r
		}
		return
	}
	for i, v := range d {
		d[i] = math.Pow(v, p)
	}
}
