package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchml/internal/cache"
	"benchml/internal/hyper"
	"benchml/internal/matrix"
	"benchml/internal/transform"
)

// constant exposes its arg v as stream field X.
type constant struct{ calls *int }

func (constant) Ports() transform.Ports   { return transform.Ports{Stream: []string{"X"}} }
func (constant) Defaults() transform.Args { return transform.Args{"v": 0} }
func (c constant) Fit(ctx context.Context, call *transform.Call) error {
	return c.Map(ctx, call)
}
func (c constant) Map(_ context.Context, call *transform.Call) error {
	if c.calls != nil {
		*c.calls++
	}
	return call.Stream.Put("X", call.Args["v"])
}

// double writes Y = 2x; with a meta input it also records meta["name"].
type double struct{ precompute bool }

func (d double) Ports() transform.Ports {
	return transform.Ports{Required: []string{"x"}, Stream: []string{"Y", "name"}, Precompute: d.precompute}
}
func (d double) Fit(ctx context.Context, call *transform.Call) error { return d.Map(ctx, call) }
func (double) Map(_ context.Context, call *transform.Call) error {
	x, err := call.Inputs.Float("x")
	if err != nil {
		return err
	}
	if meta, err := call.Inputs.Meta("meta"); err == nil {
		if err := call.Stream.Put("name", meta["name"]); err != nil {
			return err
		}
	}
	return call.Stream.Put("Y", x*2)
}

// memorize keeps the fitted x in params and returns it on map.
type memorize struct{ fits *int }

func (memorize) Ports() transform.Ports {
	return transform.Ports{Required: []string{"x"}, Stream: []string{"Z"}, Params: []string{"x"}, Precompute: true}
}
func (m memorize) Fit(_ context.Context, call *transform.Call) error {
	*m.fits++
	if err := call.Params.Put("x", call.Inputs["x"]); err != nil {
		return err
	}
	return call.Stream.Put("Z", call.Inputs["x"])
}
func (memorize) Map(_ context.Context, call *transform.Call) error {
	x, err := call.Params.Get("x")
	if err != nil {
		return err
	}
	return call.Stream.Put("Z", x)
}

func wrap(t *testing.T, tag string, impl transform.Impl, args transform.Args, in map[string]any) *transform.Transform {
	t.Helper()
	tr, err := transform.Wrap(tag, impl, args, in)
	require.NoError(t, err)
	return tr
}

func twoStage(t *testing.T, opts ...Option) *Module {
	t.Helper()
	m, err := NewModule("ab", []*transform.Transform{
		wrap(t, "A", constant{}, transform.Args{"v": 5}, nil),
		wrap(t, "B", double{}, nil, map[string]any{"x": "A.X"}),
	}, append([]Option{WithOutputs(map[string]string{"result": "B.Y"})}, opts...)...)
	require.NoError(t, err)
	return m
}

func TestModule_FitEndToEnd(t *testing.T) {
	m := twoStage(t)

	out, err := m.Evaluate(context.Background(), Fit, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 10.0}, out)
}

func TestModule_MapReproducesFit(t *testing.T) {
	m := twoStage(t)
	ctx := context.Background()

	fitOut, err := m.Evaluate(ctx, Fit, nil)
	require.NoError(t, err)
	mapOut, err := m.Evaluate(ctx, Map, nil)
	require.NoError(t, err)
	assert.Equal(t, fitOut, mapOut)
}

func TestModule_MapBeforeFit(t *testing.T) {
	m := twoStage(t)

	_, err := m.Evaluate(context.Background(), Map, nil)
	require.ErrorIs(t, err, transform.ErrNotFitted)
}

func TestModule_GridSweep(t *testing.T) {
	m := twoStage(t, WithHyper(hyper.NewGrid(hyper.MustGroup(map[string][]any{"A.v": {1, 2}}))))

	res, err := m.FitGrid(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, map[string]any{"result": 2.0}, res[0].Output)
	assert.Equal(t, map[string]any{"result": 4.0}, res[1].Output)
}

func TestModule_GridUnknownPath(t *testing.T) {
	m := twoStage(t, WithHyper(hyper.NewGrid(hyper.MustGroup(map[string][]any{"A.nope": {1}}))))
	_, err := m.FitGrid(context.Background(), nil)
	require.ErrorIs(t, err, hyper.ErrGridPath)
	require.ErrorIs(t, err, transform.ErrUnknownArg)

	m = twoStage(t, WithHyper(hyper.NewGrid(hyper.MustGroup(map[string][]any{"Q.v": {1}}))))
	_, err = m.FitGrid(context.Background(), nil)
	require.ErrorIs(t, err, hyper.ErrGridPath)
	require.ErrorIs(t, err, ErrUnknownTransform)
}

func TestModule_GridRejectedPointLeavesArgsUnchanged(t *testing.T) {
	m := twoStage(t, WithHyper(hyper.NewGrid(hyper.MustGroup(map[string][]any{"A.v": {9}, "B.nope": {1}}))))
	_, err := m.FitGrid(context.Background(), nil)
	require.ErrorIs(t, err, transform.ErrUnknownArg)

	a, ok := m.Transform("A")
	require.True(t, ok)
	v, _ := a.Arg("v")
	assert.Equal(t, 5, v)
}

func TestModule_UnresolvedReferences(t *testing.T) {
	cases := []struct {
		name  string
		ref   string
		cause Cause
		what  string
	}{
		{"unknown tag", "Q.X", CauseTag, "Q"},
		{"unknown field", "A.W", CauseField, "W"},
		{"forward reference", "C.Y", CauseTag, "C"},
		{"syntax", "AX", CauseSyntax, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewModule("m", []*transform.Transform{
				wrap(t, "A", constant{}, nil, nil),
				wrap(t, "B", double{}, nil, map[string]any{"x": tc.ref}),
				wrap(t, "C", double{}, nil, map[string]any{"x": "A.X"}),
			})
			require.ErrorIs(t, err, ErrUnresolvedReference)

			var re *ResolutionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.cause, re.Cause)
			assert.Equal(t, tc.what, re.Name)
			assert.Equal(t, "B", re.Consumer)
			assert.Equal(t, tc.ref, re.Ref)
		})
	}
}

func TestModule_UnresolvedOutput(t *testing.T) {
	_, err := NewModule("m", []*transform.Transform{
		wrap(t, "A", constant{}, nil, nil),
	}, WithOutputs(map[string]string{"y": "A.Y"}))

	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, CauseField, re.Cause)
	assert.Equal(t, "Y", re.Name)
}

func TestModule_DuplicateAndReservedTags(t *testing.T) {
	_, err := NewModule("m", []*transform.Transform{
		wrap(t, "A", constant{}, nil, nil),
		wrap(t, "A", constant{}, nil, nil),
	})
	require.ErrorIs(t, err, ErrDuplicateTag)

	_, err = NewModule("m", []*transform.Transform{wrap(t, Scope, constant{}, nil, nil)})
	require.ErrorIs(t, err, ErrDuplicateTag)
}

func TestModule_ScopeAndBroadcast(t *testing.T) {
	m, err := NewModule("m", []*transform.Transform{
		wrap(t, "B", double{}, nil, map[string]any{"x": "input.x"}),
	},
		WithBroadcast(map[string]string{"meta": "input.meta"}),
		WithOutputs(map[string]string{"y": "B.Y", "name": "B.name", "x": "input.x"}),
	)
	require.NoError(t, err)

	out, err := m.Evaluate(context.Background(), Fit, map[string]any{
		"x":    3.0,
		"meta": map[string]any{"name": "qm9"},
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out["y"])
	assert.Equal(t, "qm9", out["name"])
	assert.Equal(t, 3.0, out["x"])

	_, err = m.Evaluate(context.Background(), Fit, map[string]any{"meta": map[string]any{}})
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "x", re.Name)
}

func TestModule_ListInputsAndLiterals(t *testing.T) {
	m, err := NewModule("m", []*transform.Transform{
		wrap(t, "A", constant{}, transform.Args{"v": 1.5}, nil),
		wrap(t, "B", double{}, nil, map[string]any{"x": 4.0}),
		wrap(t, "C", double{}, nil, map[string]any{"x": "A.X", "tags": []any{"A.X", "B.Y"}, "lit": transform.Lit("A.X")}),
	}, WithOutputs(map[string]string{"b": "B.Y", "c": "C.Y"}))
	require.NoError(t, err)

	out, err := m.Evaluate(context.Background(), Fit, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.0, out["b"])
	assert.Equal(t, 3.0, out["c"])
}

func TestModule_PrecomputeCache(t *testing.T) {
	fits := 0
	c := cache.NewMemory()
	build := func() *Module {
		m, err := NewModule("m", []*transform.Transform{
			wrap(t, "M", memorize{fits: &fits}, nil, map[string]any{"x": "input.x"}),
		}, WithCache(c), WithOutputs(map[string]string{"z": "M.Z"}))
		require.NoError(t, err)
		return m
	}
	ctx := context.Background()

	m1 := build()
	_, err := m1.Evaluate(ctx, Fit, map[string]any{"x": 1.0})
	require.NoError(t, err)
	_, err = m1.Evaluate(ctx, Fit, map[string]any{"x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 1, fits)

	// a fresh module restores params from the cache and can map directly
	m2 := build()
	_, err = m2.Evaluate(ctx, Fit, map[string]any{"x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 1, fits)
	out, err := m2.Evaluate(ctx, Map, map[string]any{"x": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["z"])

	_, err = m2.Evaluate(ctx, Fit, map[string]any{"x": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 2, fits)
}

// rows emits a per-sample matrix and its kernel.
type rows struct{}

func (rows) Ports() transform.Ports {
	return transform.Ports{
		Required:      []string{"X"},
		Stream:        []string{"X", "K"},
		StreamSamples: []string{"X"},
		StreamKernel:  []string{"K"},
	}
}
func (r rows) Fit(ctx context.Context, c *transform.Call) error { return r.Map(ctx, c) }
func (rows) Map(_ context.Context, c *transform.Call) error {
	x, err := c.Inputs.Dense("X")
	if err != nil {
		return err
	}
	k, err := matrix.MulT(x, x)
	if err != nil {
		return err
	}
	if err := c.Stream.Put("X", x); err != nil {
		return err
	}
	return c.Stream.Put("K", k)
}

func TestModule_SliceOutputs(t *testing.T) {
	m, err := NewModule("m", []*transform.Transform{
		wrap(t, "R", rows{}, nil, map[string]any{"X": "input.X"}),
	}, WithOutputs(map[string]string{"X": "R.X", "K": "R.K", "raw": "input.X"}))
	require.NoError(t, err)

	x, _ := matrix.FromRows([][]float64{{1}, {2}, {3}})
	out, err := m.Evaluate(context.Background(), Fit, map[string]any{"X": x})
	require.NoError(t, err)

	sl, err := m.SliceOutputs(out, []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, sl["X"].(*matrix.Dense).Data())
	assert.Equal(t, []float64{1, 3, 3, 9}, sl["K"].(*matrix.Dense).Data())
	assert.Same(t, x, sl["raw"])
}

// scale keeps its factor from Setup; map multiplies fresh x by it.
type scale struct{ factor float64 }

func (*scale) Ports() transform.Ports {
	return transform.Ports{Required: []string{"x"}, Stream: []string{"Y"}, Params: []string{"x"}, Precompute: true}
}
func (*scale) Defaults() transform.Args { return transform.Args{"factor": 1.0} }
func (s *scale) Setup(args transform.Args) error {
	var cfg struct {
		Factor float64 `mapstructure:"factor"`
	}
	if err := args.Decode(&cfg); err != nil {
		return err
	}
	s.factor = cfg.Factor
	return nil
}
func (s *scale) Fit(ctx context.Context, call *transform.Call) error {
	if err := call.Params.Put("x", call.Inputs["x"]); err != nil {
		return err
	}
	return s.Map(ctx, call)
}
func (s *scale) Map(_ context.Context, call *transform.Call) error {
	x, err := call.Inputs.Float("x")
	if err != nil {
		return err
	}
	return call.Stream.Put("Y", x*s.factor)
}

func TestModule_CachedFitRestoresSetup(t *testing.T) {
	ctx := context.Background()
	m, err := NewModule("m", []*transform.Transform{
		wrap(t, "S", &scale{}, nil, map[string]any{"x": "input.x"}),
	}, WithCache(cache.NewMemory()), WithOutputs(map[string]string{"y": "S.Y"}))
	require.NoError(t, err)

	train := map[string]any{"x": 1.0}
	for _, f := range []float64{2, 3, 2} {
		require.NoError(t, m.SetArg("S", "factor", f))
		out, err := m.Evaluate(ctx, Fit, train)
		require.NoError(t, err)
		assert.Equal(t, f, out["y"])
	}

	// the last fit was a cache hit for factor 2
	out, err := m.Evaluate(ctx, Map, map[string]any{"x": 10.0})
	require.NoError(t, err)
	assert.Equal(t, 20.0, out["y"])
}
