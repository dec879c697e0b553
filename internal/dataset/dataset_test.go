package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frames = `3
Properties=species:S:1:pos:R:3 E=100 G=2.5 smiles="C O" pbc="F F F" relaxed
C 0 0 0
H 1 0 0
O 0 1.2 0
1
E=10 G=-1
N 0.5 0.5 0.5
`

func writeBench(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "mols", "small")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := `{
  "name": "small",
  "task": "regression",
  "metrics": ["mae", "rmse"],
  "targets": {"E": {"convert": "log10", "unit": "eV"}, "G": {}},
  "datasets": ["a.xyz"]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaFile), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xyz"), []byte(frames), 0o644))
	return root
}

func TestReadXYZ(t *testing.T) {
	s, err := ReadXYZ(strings.NewReader(frames))
	require.NoError(t, err)
	require.Len(t, s, 2)

	assert.Equal(t, []string{"C", "H", "O"}, s[0].Symbols)
	assert.Equal(t, [3]float64{0, 1.2, 0}, s[0].Positions[2])
	assert.Equal(t, int64(100), s[0].Info["E"])
	assert.Equal(t, 2.5, s[0].Info["G"])
	assert.Equal(t, "C O", s[0].Info["smiles"])
	assert.Equal(t, true, s[0].Info["relaxed"])
	assert.NotContains(t, s[0].Info, "Properties")

	idx, pos := s[0].Heavy()
	assert.Equal(t, []int{0, 2}, idx)
	assert.Len(t, pos, 2)
}

func TestReadXYZ_Malformed(t *testing.T) {
	cases := map[string]string{
		"count":      "x\n\n",
		"truncated":  "2\nE=1\nC 0 0 0\n",
		"columns":    "1\n\nC 0 0\n",
		"properties": "1\nProperties=species:S:1\nC 0 0 0\n",
		"quote":      "1\nname=\"open\nC 0 0 0\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadXYZ(strings.NewReader(in))
			require.ErrorIs(t, err, ErrMalformedXYZ)
		})
	}
}

func TestDiscover_ExpandsTargetsAndConverts(t *testing.T) {
	ds, err := Discover(writeBench(t), nil)
	require.NoError(t, err)
	require.Len(t, ds, 2)

	e, g := ds[0], ds[1]
	assert.Equal(t, "small:E:a.xyz", e.Name())
	assert.Equal(t, "small:G:a.xyz", g.Name())
	assert.InDeltaSlice(t, []float64{2, 1}, e.Y(), 1e-12)
	assert.Equal(t, []float64{2.5, -1}, g.Y())

	_, ok := e.Meta("convert")
	assert.False(t, ok)
	_, ok = e.Meta("datasets")
	assert.False(t, ok)
	unit, _ := e.Meta("unit")
	assert.Equal(t, "eV", unit)
	assert.Equal(t, []string{"mae", "rmse"}, e.Metrics())
	assert.Contains(t, e.Info(), "#configs=2")
}

func TestDiscover_Filter(t *testing.T) {
	f, err := NewFilter(`meta.target == "G" && "mae" in meta.metrics`)
	require.NoError(t, err)

	ds, err := Discover(writeBench(t), f)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "small:G:a.xyz", ds[0].Name())

	_, err = NewFilter(`meta.target ==`)
	require.ErrorIs(t, err, ErrFilter)

	f, err = NewFilter(`meta.name`)
	require.NoError(t, err)
	_, err = Discover(writeBench(t), f)
	require.ErrorIs(t, err, ErrFilter)

	none, err := NewFilter("")
	require.NoError(t, err)
	keep, err := none.Match(map[string]any{})
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestNew_CopiesMeta(t *testing.T) {
	meta := map[string]any{"name": "x", "convert": "plog", "target": "k", "tags": []any{"a"}}
	s := []*Structure{{Symbols: []string{"C"}, Positions: make([][3]float64, 1), Info: map[string]any{"k": 0.01}}}

	d, err := New(s, meta)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.Y()[0], 1e-12)
	assert.Equal(t, "plog", meta["convert"])

	d.MetaMap()["tags"].([]any)[0] = "b"
	tags, _ := d.Meta("tags")
	assert.Equal(t, []any{"a"}, tags)

	_, err = New(s, map[string]any{"convert": "sqrt"})
	require.ErrorIs(t, err, ErrUnknownConverter)
	_, err = New(s, map[string]any{"target": "missing"})
	require.ErrorIs(t, err, ErrMissingTarget)
}

func TestSubset(t *testing.T) {
	ds, err := Discover(writeBench(t), nil)
	require.NoError(t, err)
	sub := ds[1].Subset([]int{1})
	assert.Equal(t, 1, sub.Len())
	assert.Equal(t, "N", sub.At(0).Symbols[0])
	assert.Equal(t, []float64{-1}, sub.Y())
	assert.Equal(t, ds[1].Name(), sub.Name())
}
