package descriptor

import (
	"context"
	"fmt"
	"slices"

	"benchml/internal/dataset"
	"benchml/internal/matrix"
	"benchml/internal/transform"
)

func init() {
	transform.Register("descriptor_average", func() transform.Impl { return &structural{average: true} }, transform.Capability{})
	transform.Register("descriptor_atomic", func() transform.Impl { return &structural{} }, transform.Capability{})
	transform.Register("concatenate", func() transform.Impl { return concatenate{} }, transform.Capability{})
}

// structural runs a backend over the input configs. The average variant sums
// each sample's centre rows and normalises them, giving one dense row per
// sample; the atomic variant keeps one matrix per sample.
type structural struct {
	average bool
	workers int
	cfg     Config

	// built from cfg; rebuilt when the fitted calc differs
	backend Backend
	built   *Config
}

func (s *structural) Ports() transform.Ports {
	return transform.Ports{
		Required:      []string{"configs"},
		Stream:        []string{"X"},
		Params:        []string{"calc"},
		StreamSamples: []string{"X"},
		Precompute:    true,
	}
}

func (s *structural) Defaults() transform.Args {
	return transform.Args{
		"backend":   "radial",
		"address":   "",
		"workers":   1,
		"rcut":      5.0,
		"sigma":     0.5,
		"nbins":     12,
		"types":     nil,
		"normalize": true,
	}
}

// Setup checks the backend and, when types are fixed, builds it so an
// unavailable backend fails at construction.
func (s *structural) Setup(args transform.Args) error {
	var a struct {
		Config  `mapstructure:",squash"`
		Workers int `mapstructure:"workers"`
	}
	if err := args.Decode(&a); err != nil {
		return err
	}
	if err := Available(a.Backend); err != nil {
		return err
	}
	s.cfg, s.workers = a.Config, a.Workers
	s.backend, s.built = nil, nil
	if len(s.cfg.Types) > 0 {
		return s.build(s.cfg)
	}
	return nil
}

func (s *structural) build(cfg Config) error {
	if s.built != nil && sameConfig(*s.built, cfg) {
		return nil
	}
	b, err := New(cfg)
	if err != nil {
		return err
	}
	s.backend, s.built = b, &cfg
	return nil
}

// Fit resolves element types from the broadcast meta when they are not set
// and keeps the resulting configuration as params.
func (s *structural) Fit(ctx context.Context, c *transform.Call) error {
	cfg := s.cfg
	cfg.Types = slices.Clone(cfg.Types)
	if len(cfg.Types) == 0 {
		meta, err := c.Inputs.Meta("meta")
		if err != nil {
			return fmt.Errorf("types unset and no meta: %w", err)
		}
		types, err := elements(meta)
		if err != nil {
			return err
		}
		cfg.Types = types
	}
	if err := s.build(cfg); err != nil {
		return err
	}
	if err := c.Params.Put("calc", cfg); err != nil {
		return err
	}
	return s.Map(ctx, c)
}

func (s *structural) Map(ctx context.Context, c *transform.Call) error {
	v, err := c.Params.Get("calc")
	if err != nil {
		return err
	}
	cfg, ok := v.(Config)
	if !ok {
		return fmt.Errorf("params calc is %T: %w", v, transform.ErrInputType)
	}
	if err := s.build(cfg); err != nil {
		return err
	}
	configs, err := structures(c.Inputs)
	if err != nil {
		return err
	}
	var centres [][][3]float64
	if c.Inputs.Has("centres") {
		v, _ := c.Inputs.Get("centres")
		if centres, ok = v.([][][3]float64); !ok {
			return fmt.Errorf("centres is %T: %w", v, transform.ErrInputType)
		}
	}
	xs, err := Evaluate(ctx, configs, s.backend, Options{
		Workers:   s.workers,
		Reduce:    s.average,
		Normalize: s.average && cfg.Normalize,
		Centres:   centres,
		Log:       c.Log,
	})
	if err != nil {
		return err
	}
	if !s.average {
		return c.Stream.Put("X", xs)
	}
	x, err := Stack(xs)
	if err != nil {
		return err
	}
	return c.Stream.Put("X", x)
}

// concatenate joins dense feature blocks column-wise.
type concatenate struct{}

func (concatenate) Ports() transform.Ports {
	return transform.Ports{Required: []string{"X"}, Stream: []string{"X"}, StreamSamples: []string{"X"}}
}

func (c concatenate) Fit(ctx context.Context, call *transform.Call) error { return c.Map(ctx, call) }

func (concatenate) Map(_ context.Context, call *transform.Call) error {
	blocks, err := call.Inputs.DenseList("X")
	if err != nil {
		return err
	}
	x, err := matrix.HStack(blocks...)
	if err != nil {
		return err
	}
	return call.Stream.Put("X", x)
}

func structures(in transform.Inputs) ([]*dataset.Structure, error) {
	v, err := in.Get("configs")
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []*dataset.Structure:
		return x, nil
	case *dataset.Dataset:
		return x.Structures(), nil
	default:
		return nil, fmt.Errorf("configs is %T: %w", v, transform.ErrInputType)
	}
}

func elements(meta map[string]any) ([]string, error) {
	switch x := meta["elements"].(type) {
	case []string:
		return slices.Clone(x), nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("meta elements[%d] is %T: %w", i, e, transform.ErrInputType)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("meta elements is %T: %w", meta["elements"], transform.ErrInputType)
	}
}

func sameConfig(a, b Config) bool {
	return a.Backend == b.Backend && a.Address == b.Address && a.Rcut == b.Rcut &&
		a.Sigma == b.Sigma && a.NBins == b.NBins && slices.Equal(a.Types, b.Types)
}
