package descriptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"benchml/internal/dataset"
	"benchml/internal/matrix"
	"benchml/internal/telemetry"
)

// ErrWorkerFailure marks an error raised inside the worker pool.
var ErrWorkerFailure = errors.New("descriptor worker failed")

// WorkerError reports the sample whose evaluation failed in the pool.
type WorkerError struct {
	Index int
	Err   error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("descriptor worker: sample %d: %v", e.Index, e.Err)
}

func (e *WorkerError) Unwrap() []error { return []error{ErrWorkerFailure, e.Err} }

// Options controls a batch evaluation.
type Options struct {
	// Workers > 1 evaluates samples on a pool of that many goroutines.
	Workers int
	// Reduce sums each sample's rows into one row.
	Reduce bool
	// Normalize scales each reduced row to unit length.
	Normalize bool
	// Centres overrides the heavy-atom centres, one list per sample.
	Centres [][][3]float64
	Log     *slog.Logger
}

// Evaluate computes the descriptor of every sample. The result has one entry
// per sample in submission order whichever path ran; with Reduce each entry
// is a single row. Reduction and normalisation are applied the same way in
// the serial and the pool path. Only this function logs; workers do not.
func Evaluate(ctx context.Context, samples []*dataset.Structure, b Backend, opt Options) ([]*matrix.Dense, error) {
	if opt.Centres != nil && len(opt.Centres) != len(samples) {
		return nil, fmt.Errorf("%d centre lists for %d samples: %w", len(opt.Centres), len(samples), matrix.ErrShapeMismatch)
	}
	log := opt.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	metrics := telemetry.FromContext(ctx)
	start := time.Now()
	mode := "serial"
	if opt.Workers > 1 {
		mode = "pool"
	}
	log.Debug("descriptor batch", "samples", len(samples), "mode", mode, "workers", opt.Workers)

	one := func(ctx context.Context, i int) (*matrix.Dense, error) {
		centres := opt.Centres
		var pos [][3]float64
		if centres == nil {
			_, pos = samples[i].Heavy()
		} else {
			pos = centres[i]
		}
		x, err := b.Evaluate(ctx, samples[i], pos)
		if err != nil {
			return nil, err
		}
		return finish(x, opt), nil
	}

	out := make([]*matrix.Dense, len(samples))
	if opt.Workers <= 1 {
		for i := range samples {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x, err := one(ctx, i)
			if err != nil {
				return nil, fmt.Errorf("descriptor: sample %d: %w", i, err)
			}
			out[i] = x
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opt.Workers)
		for i := range samples {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				x, err := one(gctx, i)
				if err != nil {
					return &WorkerError{Index: i, Err: err}
				}
				out[i] = x
				return nil
			})
		}
		err := g.Wait()
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if err != nil {
			metrics.WorkerFailure()
			log.Error("descriptor pool failed", "err", err)
			return nil, err
		}
	}

	metrics.AddSamples(len(samples))
	log.Debug("descriptor batch done", "samples", len(samples), "mode", mode, "elapsed", time.Since(start))
	return out, nil
}

func finish(x *matrix.Dense, opt Options) *matrix.Dense {
	if !opt.Reduce {
		return x
	}
	row := matrix.SumRows(x)
	if opt.Normalize {
		matrix.Normalize(row)
	}
	r, _ := matrix.FromData(1, len(row), row)
	return r
}

// Stack joins single-row matrices into one n×F matrix.
func Stack(rows []*matrix.Dense) (*matrix.Dense, error) {
	if len(rows) == 0 {
		return matrix.Zeros(0, 0), nil
	}
	f := rows[0].Cols()
	out := matrix.Zeros(len(rows), f)
	for i, r := range rows {
		if r.Rows() != 1 || r.Cols() != f {
			return nil, fmt.Errorf("row %d is %dx%d, want 1x%d: %w", i, r.Rows(), r.Cols(), f, matrix.ErrShapeMismatch)
		}
		copy(out.Row(i), r.Row(0))
	}
	return out, nil
}
