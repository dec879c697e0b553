package kernel

import (
	"context"
	"fmt"
	"time"

	"benchml/internal/matrix"
	"benchml/internal/transform"
)

func init() {
	transform.Register("kernel_dot", func() transform.Impl { return &dot{} }, transform.Capability{})
	transform.Register("kernel_smooth_match", func() transform.Impl { return &smoothMatch{} }, transform.Capability{})
}

// dot is the polynomial kernel (X·Xᵀ)^power over dense feature rows.
type dot struct {
	power float64
}

func (*dot) Ports() transform.Ports {
	return transform.Ports{
		Required:     []string{"X"},
		Stream:       []string{"K"},
		Params:       []string{"X"},
		StreamKernel: []string{"K"},
	}
}

func (*dot) Defaults() transform.Args { return transform.Args{"power": 1} }

func (d *dot) Setup(args transform.Args) error {
	var cfg struct {
		Power float64 `mapstructure:"power"`
	}
	if err := args.Decode(&cfg); err != nil {
		return err
	}
	d.power = cfg.Power
	return nil
}

func (d *dot) Fit(ctx context.Context, c *transform.Call) error {
	x, err := c.Inputs.Dense("X")
	if err != nil {
		return err
	}
	if err := c.Params.Put("X", x.Clone()); err != nil {
		return err
	}
	return d.Map(ctx, c)
}

func (d *dot) Map(_ context.Context, c *transform.Call) error {
	x, err := c.Inputs.Dense("X")
	if err != nil {
		return err
	}
	ref, err := paramsDense(c, "X")
	if err != nil {
		return err
	}
	k, err := matrix.MulT(x, ref)
	if err != nil {
		return err
	}
	Pow(k, d.power)
	return c.Stream.Put("K", k)
}

// smoothMatch compares per-sample atom environments: each pair of samples is
// scored by Match over their descriptor matrices.
type smoothMatch struct {
	cfg  smoothConfig
	base BaseFunc
}

type smoothConfig struct {
	BaseKernel string  `mapstructure:"base_kernel"`
	BasePower  float64 `mapstructure:"base_power"`
	Gamma      float64 `mapstructure:"gamma"`
	Epsilon    float64 `mapstructure:"epsilon"`
	Workers    int     `mapstructure:"workers"`
}

func (*smoothMatch) Ports() transform.Ports {
	return transform.Ports{
		Required:     []string{"X"},
		Stream:       []string{"K"},
		Params:       []string{"X"},
		StreamKernel: []string{"K"},
		Precompute:   true,
	}
}

func (*smoothMatch) Defaults() transform.Args {
	return transform.Args{
		"base_kernel": "dot",
		"base_power":  3,
		"gamma":       1e-2,
		"epsilon":     1e-6,
		"workers":     1,
	}
}

// Setup rejects unknown base kernels, so a typo fails at build time.
func (s *smoothMatch) Setup(args transform.Args) error {
	var cfg smoothConfig
	if err := args.Decode(&cfg); err != nil {
		return err
	}
	base, err := Base(cfg.BaseKernel)
	if err != nil {
		return err
	}
	if cfg.Gamma <= 0 {
		return fmt.Errorf("gamma=%g: %w", cfg.Gamma, ErrBadRegularization)
	}
	s.cfg, s.base = cfg, base
	return nil
}

func (s *smoothMatch) Fit(ctx context.Context, c *transform.Call) error {
	xs, err := c.Inputs.DenseList("X")
	if err != nil {
		return err
	}
	k, err := s.evaluate(ctx, c, xs, xs, true)
	if err != nil {
		return err
	}
	ref := make([]*matrix.Dense, len(xs))
	for i, x := range xs {
		ref[i] = x.Clone()
	}
	if err := c.Params.Put("X", ref); err != nil {
		return err
	}
	return c.Stream.Put("K", k)
}

func (s *smoothMatch) Map(ctx context.Context, c *transform.Call) error {
	xs, err := c.Inputs.DenseList("X")
	if err != nil {
		return err
	}
	v, err := c.Params.Get("X")
	if err != nil {
		return err
	}
	ref, ok := v.([]*matrix.Dense)
	if !ok {
		return fmt.Errorf("params X is %T: %w", v, transform.ErrInputType)
	}
	k, err := s.evaluate(ctx, c, xs, ref, false)
	if err != nil {
		return err
	}
	return c.Stream.Put("K", k)
}

func (s *smoothMatch) evaluate(ctx context.Context, c *transform.Call, x1, x2 []*matrix.Dense, symmetric bool) (*matrix.Dense, error) {
	start := time.Now()
	ev := Evaluator{Workers: s.cfg.Workers}
	k, err := ev.Evaluate(ctx, len(x1), len(x2), symmetric, func(i, j int) (float64, error) {
		return Match(x1[i], x2[j], s.base, s.cfg.BasePower, s.cfg.Gamma, s.cfg.Epsilon)
	})
	if err != nil {
		return nil, err
	}
	c.Log.Debug("smooth match kernel", "rows", len(x1), "cols", len(x2), "symmetric", symmetric, "elapsed", time.Since(start))
	return k, nil
}

func paramsDense(c *transform.Call, name string) (*matrix.Dense, error) {
	v, err := c.Params.Get(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*matrix.Dense)
	if !ok {
		return nil, fmt.Errorf("params %s is %T: %w", name, v, transform.ErrInputType)
	}
	return m, nil
}
