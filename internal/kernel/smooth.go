package kernel

import (
	"errors"
	"fmt"
	"math"

	"benchml/internal/matrix"
)

// ErrBadRegularization is returned for a non-positive gamma.
var ErrBadRegularization = errors.New("regularization must be positive")

// DefaultMaxIter bounds the balancing loop of SmoothMatch.
const DefaultMaxIter = 1000

// SmoothMatch returns the entropy-regularised assignment P between the rows
// and columns of the affinity matrix k. P has uniform marginals (rows sum to
// 1/n, columns to 1/m) and maximises Σ k∘P + gamma·H(P). Balancing stops
// when every row marginal is within epsilon of its target or after maxIter
// sweeps.
func SmoothMatch(k *matrix.Dense, gamma, epsilon float64, maxIter int) (*matrix.Dense, error) {
	if gamma <= 0 {
		return nil, fmt.Errorf("gamma=%g: %w", gamma, ErrBadRegularization)
	}
	n, m := k.Rows(), k.Cols()
	p := matrix.Zeros(n, m)
	if n == 0 || m == 0 {
		return p, nil
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}

	// log domain: P_ab = exp(k_ab/gamma + f_a + g_b)
	logA, logB := -math.Log(float64(n)), -math.Log(float64(m))
	f := make([]float64, n)
	g := make([]float64, m)
	buf := make([]float64, max(n, m))

	for range maxIter {
		for a := range n {
			row := k.Row(a)
			for b := range m {
				buf[b] = row[b]/gamma + g[b]
			}
			f[a] = logA - logSumExp(buf[:m])
		}
		for b := range m {
			for a := range n {
				buf[a] = k.At(a, b)/gamma + f[a]
			}
			g[b] = logB - logSumExp(buf[:n])
		}

		// columns are exact after the g update; rows decide convergence
		worst := 0.0
		for a := range n {
			row := k.Row(a)
			var s float64
			for b := range m {
				s += math.Exp(row[b]/gamma + f[a] + g[b])
			}
			worst = math.Max(worst, math.Abs(s-math.Exp(logA)))
		}
		if worst < epsilon {
			break
		}
	}

	for a := range n {
		row := k.Row(a)
		for b := range m {
			p.Set(a, b, math.Exp(row[b]/gamma+f[a]+g[b]))
		}
	}
	return p, nil
}

// Match scores two per-atom descriptor sets: the base kernel raised to power,
// refined by SmoothMatch, reduced by Σ kij∘pij.
func Match(xi, xj *matrix.Dense, base BaseFunc, power, gamma, epsilon float64) (float64, error) {
	kij, err := base(xi, xj)
	if err != nil {
		return 0, err
	}
	Pow(kij, power)
	pij, err := SmoothMatch(kij, gamma, epsilon, DefaultMaxIter)
	if err != nil {
		return 0, err
	}
	var s float64
	pd := pij.Data()
	for i, v := range kij.Data() {
		s += v * pd[i]
	}
	return s, nil
}

func logSumExp(x []float64) float64 {
	hi := math.Inf(-1)
	for _, v := range x {
		hi = math.Max(hi, v)
	}
	if math.IsInf(hi, -1) {
		return hi
	}
	var s float64
	for _, v := range x {
		s += math.Exp(v - hi)
	}
	return hi + math.Log(s)
}
