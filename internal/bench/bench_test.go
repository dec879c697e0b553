package bench

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchml/internal/dataset"
	_ "benchml/internal/descriptor"
	_ "benchml/internal/kernel"
	"benchml/internal/pipeline"
	_ "benchml/internal/predict"
	"benchml/internal/spec"
	"benchml/sink"
)

// molecules writes n small CO-like molecules with a bond-length dependent target.
func molecules(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		d := 1.0 + 0.05*float64(i)
		fmt.Fprintf(&b, "3\nE=%g\nC 0 0 0\nO %g 0 0\nH 0 1.1 0\n", 2*d, d)
	}
	root := t.TempDir()
	dir := filepath.Join(root, "co")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := `{"name": "co", "task": "regression", "metrics": ["mae", "rmse", "r2"],
  "elements": ["C", "H", "O"], "targets": {"E": {}}, "datasets": ["co.xyz"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.MetaFile), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "co.xyz"), []byte(b.String()), 0o644))
	return root
}

func krrModule(t *testing.T, output string) *pipeline.Module {
	t.Helper()
	m, err := pipeline.CompileModule(spec.ModuleSpec{
		Tag: "radial_krr",
		Transforms: []spec.TransformSpec{
			{Tag: "descriptor", Kind: "descriptor_average", Args: map[string]any{"rcut": 4.0, "nbins": 8}, Inputs: map[string]any{"configs": "input.configs"}},
			{Tag: "kernel", Kind: "kernel_dot", Inputs: map[string]any{"X": "descriptor.X"}},
			{Tag: "predictor", Kind: "krr", Inputs: map[string]any{"K": "kernel.K", "y": "input.y"}},
		},
		Hyper:     []map[string][]any{{"predictor.lambda": {1e-6, 1e-2}}},
		Broadcast: map[string]string{"meta": "input.meta"},
		Outputs:   map[string]string{output: "predictor.y"},
	})
	require.NoError(t, err)
	return m
}

type capture struct{ recs []sink.Record }

func (c *capture) Configure(any) error { return nil }
func (c *capture) Close() error        { return nil }
func (c *capture) Push(r sink.Record) error {
	c.recs = append(c.recs, r)
	return nil
}

func TestRunner_ScoresEveryPoint(t *testing.T) {
	ds, err := dataset.Discover(molecules(t, 12), nil)
	require.NoError(t, err)
	require.Len(t, ds, 1)

	out := &capture{}
	r := New(Options{TestFraction: 0.25, Seed: 7, Sink: out})
	recs, err := r.Run(context.Background(), ds, []*pipeline.Module{krrModule(t, "y")})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, recs, out.recs)

	for _, rec := range recs {
		assert.Empty(t, rec.Err)
		assert.Equal(t, r.RunID(), rec.RunID)
		assert.Equal(t, "co:E:co.xyz", rec.Dataset)
		assert.Equal(t, 9, rec.NTrain)
		assert.Equal(t, 3, rec.NTest)
		assert.Contains(t, rec.Metrics, "mae")
		assert.Contains(t, rec.Metrics, "rmse")
		assert.GreaterOrEqual(t, rec.Metrics["rmse"], rec.Metrics["mae"])
	}
	assert.Equal(t, 1e-6, recs[0].Point["predictor.lambda"])
	assert.Equal(t, 1e-2, recs[1].Point["predictor.lambda"])
}

func TestRunner_FailedPointsAreRecorded(t *testing.T) {
	ds, err := dataset.Discover(molecules(t, 6), nil)
	require.NoError(t, err)
	mods := []*pipeline.Module{krrModule(t, "prediction")}

	recs, err := New(Options{Seed: 1}).Run(context.Background(), ds, mods)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Contains(t, rec.Err, `output "y"`)
	}

	_, err = New(Options{Seed: 1, FailFast: true}).Run(context.Background(), ds, mods)
	require.Error(t, err)
}

func TestRunner_OptionsFromPipelineFile(t *testing.T) {
	o := OptionsFrom(spec.BenchSpec{Output: "energy", TestFraction: 0.5, Seed: 3, FailFast: true})
	r := New(o)
	assert.Equal(t, "energy", r.opts.Output)
	assert.Equal(t, 0.5, r.opts.TestFraction)
	assert.True(t, r.opts.FailFast)
	assert.NotEqual(t, r.RunID(), New(o).RunID())
}

func TestSplit(t *testing.T) {
	train, test := Split(10, 0.3, 42)
	assert.Len(t, test, 3)
	assert.Len(t, train, 7)

	seen := map[int]bool{}
	for _, i := range append(append([]int(nil), train...), test...) {
		assert.False(t, seen[i], "index %d twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	train2, test2 := Split(10, 0.3, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, test = Split(2, 0.01, 1)
	assert.Len(t, test, 1)
	train, test = Split(1, 0.5, 1)
	assert.Equal(t, []int{0}, train)
	assert.Empty(t, test)
}
