// Package bench runs every model over every dataset: for each grid point of
// a model it fits on a seeded holdout split, predicts the held-out samples,
// scores the predictions and emits one sink.Record.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"benchml/internal/dataset"
	"benchml/internal/hyper"
	"benchml/internal/matrix"
	"benchml/internal/pipeline"
	"benchml/internal/predict"
	"benchml/internal/spec"
	"benchml/sink"
)

// ErrNoTarget is returned for datasets without target values.
var ErrNoTarget = errors.New("dataset has no targets")

// DefaultMetrics are scored when a dataset's metadata names none.
var DefaultMetrics = []string{"mae", "rmse"}

// Scope fields handed to every module as input.<field>.
const (
	FieldConfigs = "configs"
	FieldY       = "y"
	FieldMeta    = "meta"
)

type Options struct {
	// Output names the module output holding predictions.
	Output       string
	TestFraction float64
	Seed         int64
	// FailFast aborts on the first failed point instead of recording it.
	FailFast bool

	Log  *slog.Logger
	Sink sink.Adapter
}

// OptionsFrom copies the bench block of a pipeline file.
func OptionsFrom(b spec.BenchSpec) Options {
	return Options{Output: b.Output, TestFraction: b.TestFraction, Seed: b.Seed, FailFast: b.FailFast}
}

type Runner struct {
	opts  Options
	runID string
}

func New(opts Options) *Runner {
	if opts.Output == "" {
		opts.Output = "y"
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = 0.25
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	r := &Runner{opts: opts, runID: uuid.NewString()}
	r.opts.Log = opts.Log.With("run", r.runID)
	return r
}

func (r *Runner) RunID() string { return r.runID }

// Run benchmarks every module on every dataset and returns the records in
// emission order. Records are also pushed to the configured sink.
func (r *Runner) Run(ctx context.Context, datasets []*dataset.Dataset, modules []*pipeline.Module) ([]sink.Record, error) {
	var out []sink.Record
	for _, d := range datasets {
		if d.Y() == nil {
			if r.opts.FailFast {
				return out, fmt.Errorf("%s: %w", d.Name(), ErrNoTarget)
			}
			r.opts.Log.Warn("skipping dataset", "dataset", d.Name(), "err", ErrNoTarget)
			continue
		}
		train, test := Split(d.Len(), r.opts.TestFraction, r.opts.Seed)
		r.opts.Log.Info("dataset", "info", d.Info(), "train", len(train), "test", len(test))
		for _, m := range modules {
			recs, err := r.runModule(ctx, d, m, train, test)
			out = append(out, recs...)
			if err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func (r *Runner) runModule(ctx context.Context, d *dataset.Dataset, m *pipeline.Module, train, test []int) ([]sink.Record, error) {
	trainIn := scope(d.Subset(train))
	testIn := scope(d.Subset(test))
	yTest := d.Subset(test).Y()
	metrics := d.Metrics()
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}

	var recs []sink.Record
	err := m.Sweep(ctx, func(ctx context.Context, _ int, p hyper.Point) error {
		start := time.Now()
		rec := sink.Record{
			RunID:   r.runID,
			Dataset: d.Name(),
			Module:  m.Tag(),
			Point:   p.Map(),
			NTrain:  len(train),
			NTest:   len(test),
			Time:    start.UTC(),
		}
		scores, err := r.evaluate(ctx, m, trainIn, testIn, yTest, metrics)
		rec.Elapsed = time.Since(start)
		if err != nil {
			rec.Err = err.Error()
		}
		rec.Metrics = scores
		recs = append(recs, rec)
		if r.opts.Sink != nil {
			if perr := r.opts.Sink.Push(rec); perr != nil {
				return fmt.Errorf("sink: %w", perr)
			}
		}
		if err != nil {
			if r.opts.FailFast || ctx.Err() != nil {
				return err
			}
			r.opts.Log.Warn("point failed", "dataset", d.Name(), "module", m.Tag(), "point", p.String(), "err", err)
			return nil
		}
		r.opts.Log.Info("point scored", "dataset", d.Name(), "module", m.Tag(), "point", p.String(), "metrics", scores)
		return nil
	})
	return recs, err
}

func (r *Runner) evaluate(ctx context.Context, m *pipeline.Module, trainIn, testIn map[string]any, yTest []float64, metrics []string) (map[string]float64, error) {
	if _, err := m.Evaluate(ctx, pipeline.Fit, trainIn); err != nil {
		return nil, err
	}
	out, err := m.Evaluate(ctx, pipeline.Map, testIn)
	if err != nil {
		return nil, err
	}
	yPred, err := predictions(out[r.opts.Output])
	if err != nil {
		return nil, fmt.Errorf("module %s: output %q: %w", m.Tag(), r.opts.Output, err)
	}
	scores := make(map[string]float64, len(metrics))
	for _, name := range metrics {
		v, err := predict.Score(name, yTest, yPred)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		scores[name] = v
	}
	return scores, nil
}

func scope(d *dataset.Dataset) map[string]any {
	return map[string]any{
		FieldConfigs: d.Structures(),
		FieldY:       slices.Clone(d.Y()),
		FieldMeta:    d.MetaMap(),
	}
}

// predictions accepts a float slice or a single-column matrix.
func predictions(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case *matrix.Dense:
		if x.Cols() != 1 {
			return nil, fmt.Errorf("%dx%d predictions: %w", x.Rows(), x.Cols(), matrix.ErrShapeMismatch)
		}
		return slices.Clone(x.Data()), nil
	case nil:
		return nil, errors.New("missing")
	default:
		return nil, fmt.Errorf("predictions are %T", v)
	}
}

// Split returns a deterministic holdout: a seeded permutation of [0,n) cut
// into train and test, both sorted. A non-empty test set is kept whenever
// n >= 2.
func Split(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewPCG(uint64(seed), 0x62656e63686d6c)).Perm(n)
	nTest := int(math.Round(float64(n) * testFraction))
	if nTest == 0 && n >= 2 && testFraction > 0 {
		nTest = 1
	}
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	test = slices.Sorted(slices.Values(perm[:nTest]))
	train = slices.Sorted(slices.Values(perm[nTest:]))
	return train, test
}
