package matrix

import (
	"errors"
	"fmt"
	"math"
)

// ErrSingular is returned when a system has no unique solution.
var ErrSingular = errors.New("matrix: singular")

// Solve returns x with a·x = b using Gaussian elimination with partial pivoting.
// a is not modified.
func Solve(a *Dense, b []float64) ([]float64, error) {
	n := a.r
	if a.c != n || len(b) != n {
		return nil, fmt.Errorf("Solve %dx%d with len(b)=%d: %w", a.r, a.c, len(b), ErrShapeMismatch)
	}
	m := a.Clone()
	x := make([]float64, n)
	copy(x, b)

	for k := 0; k < n; k++ {
		p := k
		for i := k + 1; i < n; i++ {
			if math.Abs(m.At(i, k)) > math.Abs(m.At(p, k)) {
				p = i
			}
		}
		if math.Abs(m.At(p, k)) < 1e-300 {
			return nil, ErrSingular
		}
		if p != k {
			rk, rp := m.Row(k), m.Row(p)
			for j := range rk {
				rk[j], rp[j] = rp[j], rk[j]
			}
			x[k], x[p] = x[p], x[k]
		}
		piv := m.At(k, k)
		for i := k + 1; i < n; i++ {
			f := m.At(i, k) / piv
			if f == 0 {
				continue
			}
			ri, rk := m.Row(i), m.Row(k)
			for j := k; j < n; j++ {
				ri[j] -= f * rk[j]
			}
			x[i] -= f * x[k]
		}
	}
	for k := n - 1; k >= 0; k-- {
		s := x[k]
		rk := m.Row(k)
		for j := k + 1; j < n; j++ {
			s -= rk[j] * x[j]
		}
		x[k] = s / rk[k]
	}
	return x, nil
}
