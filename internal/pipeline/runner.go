package pipeline

import (
	"context"
	"fmt"

	"benchml/internal/hyper"
)

// StepFunc runs one grid point after it has been applied to the module.
// Returning an error aborts the sweep; a step that wants to skip a failed
// point logs it and returns nil.
type StepFunc func(ctx context.Context, i int, p hyper.Point) error

// Sweep applies every point of the module's grid in enumeration order and
// calls step after each application. A module without a grid runs step once
// with an empty point. Path errors always abort.
func (m *Module) Sweep(ctx context.Context, step StepFunc) error {
	g := m.hyper
	for i := 0; i < g.Size(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := g.Point(i)
		if err := hyper.Apply(p, m); err != nil {
			return fmt.Errorf("module %s: point %d: %w", m.tag, i, err)
		}
		m.log.Info("grid point", "index", i, "of", g.Size(), "point", p.String())
		if err := step(ctx, i, p); err != nil {
			m.metrics.GridPoint(m.tag, "error")
			return err
		}
		m.metrics.GridPoint(m.tag, "ok")
	}
	return nil
}

// PointResult is the outcome of fitting one grid point.
type PointResult struct {
	Point  hyper.Point
	Output map[string]any
	Err    error
}

// FitGrid fits the module on inputs at every grid point. Failed points are
// recorded and the sweep continues.
func (m *Module) FitGrid(ctx context.Context, inputs map[string]any) ([]PointResult, error) {
	var res []PointResult
	err := m.Sweep(ctx, func(ctx context.Context, _ int, p hyper.Point) error {
		out, err := m.Evaluate(ctx, Fit, inputs)
		if err != nil {
			m.log.Warn("grid point failed", "point", p.String(), "err", err)
		}
		res = append(res, PointResult{Point: p, Output: out, Err: err})
		return nil
	})
	return res, err
}
