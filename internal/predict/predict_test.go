package predict

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchml/internal/matrix"
	"benchml/internal/transform"
)

func TestKRR_InterpolatesTraining(t *testing.T) {
	tr, err := transform.New("krr", "predictor", transform.Args{"lambda": 1e-10}, nil)
	require.NoError(t, err)

	k, _ := matrix.FromRows([][]float64{
		{1, 0.5, 0.1},
		{0.5, 1, 0.3},
		{0.1, 0.3, 1},
	})
	y := []float64{1, 2, 4}
	ctx := context.Background()

	require.NoError(t, tr.Fit(ctx, transform.Inputs{"K": k, "y": y}, nil))
	got, err := tr.Stream().Get("y")
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, got, 1e-6)

	mean, err := tr.Params().Get("mean")
	require.NoError(t, err)
	assert.InDelta(t, 7.0/3, mean, 1e-12)

	row, _ := matrix.FromRows([][]float64{{0, 0, 0}})
	require.NoError(t, tr.Map(ctx, transform.Inputs{"K": row, "y": []float64{0}}, nil))
	got, err = tr.Stream().Get("y")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{7.0 / 3}, got, 1e-12)
}

func TestKRR_ShapeErrors(t *testing.T) {
	tr, err := transform.New("krr", "predictor", nil, nil)
	require.NoError(t, err)
	k, _ := matrix.FromRows([][]float64{{1, 0}, {0, 1}})
	ctx := context.Background()

	require.ErrorIs(t, tr.Fit(ctx, transform.Inputs{"K": k, "y": []float64{1}}, nil), matrix.ErrShapeMismatch)
	require.NoError(t, tr.Fit(ctx, transform.Inputs{"K": k, "y": []float64{1, 2}}, nil))

	wide, _ := matrix.FromRows([][]float64{{1, 0, 0}})
	require.ErrorIs(t, tr.Map(ctx, transform.Inputs{"K": wide, "y": []float64{0}}, nil), matrix.ErrShapeMismatch)
}

func TestScore(t *testing.T) {
	yt := []float64{1, 2, 3, 4}
	yp := []float64{1, 2, 3, 6}

	cases := map[string]float64{
		"mae":  0.5,
		"rmse": 1,
		"r2":   1 - 4.0/5,
		"acc":  0.75,
	}
	for name, want := range cases {
		got, err := Score(name, yt, yp)
		require.NoError(t, err, name)
		assert.InDelta(t, want, got, 1e-12, name)
	}

	_, err := Score("auc", yt, yp)
	require.ErrorIs(t, err, ErrUnknownMetric)
	_, err = Score("mae", yt, yp[:2])
	require.ErrorIs(t, err, ErrLength)

	v, err := Score("mae", nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))
	assert.Equal(t, []string{"acc", "mae", "r2", "rmse"}, Metrics())
}
