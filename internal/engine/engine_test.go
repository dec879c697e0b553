package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchml/internal/config"
	_ "benchml/internal/descriptor"
	_ "benchml/internal/kernel"
	_ "benchml/internal/predict"
	"benchml/internal/spec"
)

const pipelineYAML = `schema_version: v1
modules:
  - tag: radial_krr
    transforms:
      - {tag: descriptor, kind: descriptor_average, args: {rcut: 4.0, nbins: 6}, inputs: {configs: input.configs}}
      - {tag: kernel, kind: kernel_dot, inputs: {X: descriptor.X}}
      - {tag: predictor, kind: krr, inputs: {K: kernel.K, y: input.y}}
    broadcast: {meta: input.meta}
    outputs: {y: predictor.y}
bench: {test_fraction: 0.25, seed: 3}
sinks: [stdout]
`

func fixture(t *testing.T) (root, pipeline string) {
	t.Helper()
	root = t.TempDir()
	var b strings.Builder
	for i := 0; i < 8; i++ {
		d := 1.1 + 0.04*float64(i)
		fmt.Fprintf(&b, "2\nE=%g\nC 0 0 0\nO %g 0 0\n", d*d, d)
	}
	dir := filepath.Join(root, "data", "co")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := `{"name": "co", "task": "regression", "metrics": ["mae"], "elements": ["C", "O"],
  "targets": {"E": {}}, "datasets": ["co.xyz"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.json"), []byte(meta), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "co.xyz"), []byte(b.String()), 0o644))

	pipeline = filepath.Join(root, "pipeline.yml")
	require.NoError(t, os.WriteFile(pipeline, []byte(pipelineYAML), 0o644))
	return filepath.Join(root, "data"), pipeline
}

func TestEngine_RunWithMemoryCache(t *testing.T) {
	data, pipe := fixture(t)
	cfg := config.EngineConfig{
		Log:   config.LogCfg{Level: "error"},
		Cache: config.CacheCfg{Backend: config.CacheMemory},
		Data:  config.DataCfg{Root: data},
	}
	e, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	recs, err := e.Run(context.Background(), pipe, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Err)
	assert.Contains(t, recs[0].Metrics, "mae")

	recs, err = e.Run(context.Background(), pipe, `meta.task == "classification"`)
	require.NoError(t, err)
	assert.Empty(t, recs)

	mfs, err := e.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "benchml_transform_seconds")
	assert.Contains(t, names, "benchml_precompute_lookups_total")
}

func TestBootstrap_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.EngineConfig{Cache: config.CacheCfg{
		Backend: config.CacheRedis,
		Redis:   config.RedisCfg{Addr: mr.Addr(), TTL: time.Hour},
	}}
	e, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, e.cache)
	require.NoError(t, e.Close())

	mr.Close()
	_, err = Bootstrap(context.Background(), cfg)
	require.Error(t, err)
}

func TestEngine_UnknownSink(t *testing.T) {
	e, err := Bootstrap(context.Background(), config.EngineConfig{})
	require.NoError(t, err)
	_, err = e.Sinks(spec.File{Sinks: []string{"carrier-pigeon"}})
	require.Error(t, err)
}

func TestEngine_ServeBackendStopsWithContext(t *testing.T) {
	e, err := Bootstrap(context.Background(), config.EngineConfig{
		Backend: config.BackendCfg{Listen: "127.0.0.1:0", Local: "radial"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.ServeBackend(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
