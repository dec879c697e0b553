// Package sink delivers benchmark records to their destinations. Drivers
// live in subpackages and register themselves from init.
package sink

import (
	"fmt"
	"sort"
	"time"
)

// Record is the outcome of one (dataset, module, grid point) evaluation.
type Record struct {
	RunID   string             `json:"run_id"`
	Dataset string             `json:"dataset"`
	Module  string             `json:"module"`
	Point   map[string]any     `json:"point,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	NTrain  int                `json:"n_train"`
	NTest   int                `json:"n_test"`
	Err     string             `json:"error,omitempty"`
	Elapsed time.Duration      `json:"elapsed_ns"`
	Time    time.Time          `json:"time"`
}

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	Push(Record) error
	Close() error // idempotent
}

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Names lists the registered drivers.
func Names() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Multi fans a record out to several adapters.
type Multi []Adapter

func (m Multi) Configure(any) error { return nil }

func (m Multi) Push(r Record) error {
	for _, a := range m {
		if err := a.Push(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, a := range m {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
