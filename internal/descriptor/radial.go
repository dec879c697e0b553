package descriptor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"benchml/internal/dataset"
	"benchml/internal/matrix"
)

// ErrBadConfig is returned for backend parameters outside their domain.
var ErrBadConfig = errors.New("bad descriptor config")

func init() {
	Register("radial", newRadial, nil)
}

// radial is an element-resolved radial density: for every centre and every
// element type, Gaussian-smeared neighbour distances sampled on nbins points
// in [0, rcut], damped by a cosine cutoff.
type radial struct {
	rcut, sigma float64
	bins        []float64
	types       []string
}

func newRadial(cfg Config) (Backend, error) {
	if cfg.Rcut <= 0 || cfg.Sigma <= 0 || cfg.NBins < 2 {
		return nil, fmt.Errorf("rcut=%g sigma=%g nbins=%d: %w", cfg.Rcut, cfg.Sigma, cfg.NBins, ErrBadConfig)
	}
	if len(cfg.Types) == 0 {
		return nil, fmt.Errorf("no element types: %w", ErrBadConfig)
	}
	r := &radial{rcut: cfg.Rcut, sigma: cfg.Sigma, types: slices.Clone(cfg.Types)}
	r.bins = make([]float64, cfg.NBins)
	for k := range r.bins {
		r.bins[k] = cfg.Rcut * float64(k) / float64(cfg.NBins-1)
	}
	return r, nil
}

func (r *radial) Evaluate(ctx context.Context, s *dataset.Structure, centres [][3]float64) (*matrix.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nb := len(r.bins)
	out := matrix.Zeros(len(centres), len(r.types)*nb)
	for i, c := range centres {
		row := out.Row(i)
		for a, sym := range s.Symbols {
			t := slices.Index(r.types, sym)
			if t < 0 {
				return nil, fmt.Errorf("element %q not in types %v: %w", sym, r.types, ErrBadConfig)
			}
			d := dist(c, s.Positions[a])
			if d < 1e-8 || d >= r.rcut {
				continue
			}
			w := 0.5 * (math.Cos(math.Pi*d/r.rcut) + 1)
			for k, rk := range r.bins {
				x := (d - rk) / r.sigma
				row[t*nb+k] += w * math.Exp(-0.5*x*x)
			}
		}
	}
	return out, nil
}

func dist(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
