// Package predict holds leaf estimators and the scores the benchmark driver
// reports for them.
package predict

import (
	"context"
	"fmt"

	"benchml/internal/matrix"
	"benchml/internal/transform"
)

func init() {
	transform.Register("krr", func() transform.Impl { return &krr{} }, transform.Capability{})
}

// krr is kernel ridge regression on a precomputed kernel: at fit it solves
// (K + λI)·alpha = y - mean, at map it predicts K·alpha + mean.
type krr struct{}

func (*krr) Ports() transform.Ports {
	return transform.Ports{
		Required:      []string{"K", "y"},
		Stream:        []string{"y"},
		Params:        []string{"alpha", "mean"},
		StreamSamples: []string{"y"},
	}
}

func (*krr) Defaults() transform.Args { return transform.Args{"lambda": 1e-5} }

func (k *krr) Fit(ctx context.Context, c *transform.Call) error {
	km, err := c.Inputs.Dense("K")
	if err != nil {
		return err
	}
	y, err := c.Inputs.Floats("y")
	if err != nil {
		return err
	}
	if km.Rows() != len(y) || km.Cols() != len(y) {
		return fmt.Errorf("krr: K is %dx%d for %d targets: %w", km.Rows(), km.Cols(), len(y), matrix.ErrShapeMismatch)
	}
	var cfg struct {
		Lambda float64 `mapstructure:"lambda"`
	}
	if err := c.Args.Decode(&cfg); err != nil {
		return err
	}

	var mean float64
	for _, v := range y {
		mean += v
	}
	if len(y) > 0 {
		mean /= float64(len(y))
	}
	a := km.Clone()
	rhs := make([]float64, len(y))
	for i := range y {
		a.Set(i, i, a.At(i, i)+cfg.Lambda)
		rhs[i] = y[i] - mean
	}
	alpha, err := matrix.Solve(a, rhs)
	if err != nil {
		return fmt.Errorf("krr: %w", err)
	}
	if err := c.Params.Put("alpha", alpha); err != nil {
		return err
	}
	if err := c.Params.Put("mean", mean); err != nil {
		return err
	}
	return k.Map(ctx, c)
}

func (*krr) Map(_ context.Context, c *transform.Call) error {
	km, err := c.Inputs.Dense("K")
	if err != nil {
		return err
	}
	av, err := c.Params.Get("alpha")
	if err != nil {
		return err
	}
	mv, err := c.Params.Get("mean")
	if err != nil {
		return err
	}
	alpha, ok := av.([]float64)
	if !ok {
		return fmt.Errorf("krr: params alpha is %T: %w", av, transform.ErrInputType)
	}
	mean, _ := mv.(float64)
	if km.Cols() != len(alpha) {
		return fmt.Errorf("krr: K has %d columns, fitted on %d samples: %w", km.Cols(), len(alpha), matrix.ErrShapeMismatch)
	}
	y := make([]float64, km.Rows())
	for i := range y {
		y[i] = matrix.Dot(km.Row(i), alpha) + mean
	}
	return c.Stream.Put("y", y)
}
