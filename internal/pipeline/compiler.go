package pipeline

import (
	"fmt"

	"benchml/internal/config"
	"benchml/internal/hyper"
	"benchml/internal/spec"
	"benchml/internal/transform"
)

// CompileFile loads a pipeline YAML and builds every module it declares.
func CompileFile(path string, opts ...Option) ([]*Module, spec.File, error) {
	cfg, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, cfg, err
	}
	mods, err := Compile(cfg, opts...)
	return mods, cfg, err
}

// Compile builds the modules of a parsed pipeline file. Transform kinds are
// looked up in the transform registry, so packages providing kinds must be
// linked in by the caller.
func Compile(cfg spec.File, opts ...Option) ([]*Module, error) {
	mods := make([]*Module, 0, len(cfg.Modules))
	for _, ms := range cfg.Modules {
		m, err := CompileModule(ms, opts...)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// CompileModule builds one module from its declaration.
func CompileModule(ms spec.ModuleSpec, opts ...Option) (*Module, error) {
	ts := make([]*transform.Transform, 0, len(ms.Transforms))
	for _, tsp := range ms.Transforms {
		inputs := make(map[string]any, len(tsp.Inputs))
		for name, v := range tsp.Inputs {
			inputs[name] = wiring(v)
		}
		t, err := transform.New(tsp.Kind, tsp.Tag, transform.Args(tsp.Args), inputs)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", ms.Tag, err)
		}
		ts = append(ts, t)
	}

	groups := make([]hyper.Group, 0, len(ms.Hyper))
	for i, members := range ms.Hyper {
		g, err := hyper.NewGroup(members)
		if err != nil {
			return nil, fmt.Errorf("module %s: hyper group %d: %w", ms.Tag, i, err)
		}
		groups = append(groups, g)
	}

	all := append([]Option{
		WithHyper(hyper.NewGrid(groups...)),
		WithBroadcast(ms.Broadcast),
		WithOutputs(ms.Outputs),
	}, opts...)
	return NewModule(ms.Tag, ts, all...)
}

// wiring turns YAML {literal: v} maps into transform literals; everything
// else is passed through for the resolver.
func wiring(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if lit, ok := m["literal"]; ok {
			return transform.Lit(lit)
		}
	}
	return v
}
