// Package kernel computes pairwise similarity matrices between sample sets
// and exposes them as pipeline transforms.
package kernel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"benchml/internal/matrix"
)

// PairFunc scores sample i of the first set against sample j of the second.
type PairFunc func(i, j int) (float64, error)

// Evaluator fills n1×n2 matrices from a PairFunc.
type Evaluator struct {
	// Workers > 1 spreads rows over that many goroutines.
	Workers int
}

// Evaluate computes K[i,j] = pair(i, j). With symmetric set the caller
// asserts both sets are the same; only j >= i is computed and mirrored, so
// the result is exactly symmetric. Symmetric evaluation needs n1 == n2.
//
// Rows are independent; pair must be safe for concurrent use when Workers > 1.
func (e Evaluator) Evaluate(ctx context.Context, n1, n2 int, symmetric bool, pair PairFunc) (*matrix.Dense, error) {
	if symmetric && n1 != n2 {
		return nil, fmt.Errorf("symmetric evaluation of %dx%d: %w", n1, n2, matrix.ErrShapeMismatch)
	}
	k := matrix.Zeros(n1, n2)
	row := func(i int) error {
		start := 0
		if symmetric {
			start = i
		}
		for j := start; j < n2; j++ {
			v, err := pair(i, j)
			if err != nil {
				return fmt.Errorf("pair (%d,%d): %w", i, j, err)
			}
			k.Set(i, j, v)
			if symmetric {
				k.Set(j, i, v)
			}
		}
		return nil
	}

	if e.Workers <= 1 {
		for i := 0; i < n1; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := row(i); err != nil {
				return nil, err
			}
		}
		return k, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for i := 0; i < n1; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return row(i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return k, nil
}
