package predict

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrLength        = errors.New("length mismatch")
)

// Metric scores predictions against reference values.
type Metric func(yTrue, yPred []float64) float64

var metrics = map[string]Metric{
	"mae":  mae,
	"rmse": rmse,
	"r2":   r2,
	"acc":  acc,
}

// Score evaluates the named metric.
func Score(name string, yTrue, yPred []float64) (float64, error) {
	m, ok := metrics[name]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownMetric)
	}
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%s: %d vs %d: %w", name, len(yTrue), len(yPred), ErrLength)
	}
	if len(yTrue) == 0 {
		return math.NaN(), nil
	}
	return m(yTrue, yPred), nil
}

// Metrics lists the known metric names.
func Metrics() []string {
	out := make([]string, 0, len(metrics))
	for k := range metrics {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mae(t, p []float64) float64 {
	var s float64
	for i := range t {
		s += math.Abs(t[i] - p[i])
	}
	return s / float64(len(t))
}

func rmse(t, p []float64) float64 {
	var s float64
	for i := range t {
		d := t[i] - p[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(t)))
}

// r2 is the coefficient of determination; 1 - SSres/SStot.
func r2(t, p []float64) float64 {
	var mean float64
	for _, v := range t {
		mean += v
	}
	mean /= float64(len(t))
	var res, tot float64
	for i := range t {
		res += (t[i] - p[i]) * (t[i] - p[i])
		tot += (t[i] - mean) * (t[i] - mean)
	}
	if tot == 0 {
		return math.NaN()
	}
	return 1 - res/tot
}

// acc is the fraction of predictions that round to the reference class.
func acc(t, p []float64) float64 {
	var hit int
	for i := range t {
		if math.Round(p[i]) == math.Round(t[i]) {
			hit++
		}
	}
	return float64(hit) / float64(len(t))
}
