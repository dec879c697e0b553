// Package descriptor turns molecular structures into feature matrices.
//
// A Backend computes one matrix per structure, one row per centre. Backends
// are registered by name together with a probe that decides, once per
// process, whether the backend can run at all. The package also provides
// the serial and worker-pool batch evaluation used by the descriptor
// transforms.
package descriptor

import (
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"

	"benchml/internal/dataset"
	"benchml/internal/matrix"
	"benchml/internal/transform"
)

// Backend computes the descriptor of one structure around the given centres.
// Implementations must be safe for concurrent use.
type Backend interface {
	Evaluate(ctx context.Context, s *dataset.Structure, centres [][3]float64) (*matrix.Dense, error)
}

// Config selects and parameterises a backend. It is what the descriptor
// transforms keep in their params.
type Config struct {
	Backend string   `mapstructure:"backend"`
	Address string   `mapstructure:"address"`
	Rcut    float64  `mapstructure:"rcut"`
	Sigma   float64  `mapstructure:"sigma"`
	NBins   int      `mapstructure:"nbins"`
	Types   []string `mapstructure:"types"`
	// Normalize scales reduced rows to unit length; backends ignore it.
	Normalize bool `mapstructure:"normalize"`
}

// Factory builds a backend from its configuration.
type Factory func(cfg Config) (Backend, error)

type registration struct {
	factory Factory
	probe   func() error

	once sync.Once
	err  error
}

var (
	mu       sync.RWMutex
	backends = map[string]*registration{}
)

func init() {
	gob.Register(Config{})
}

// Register makes a backend available under name. probe may be nil; it is
// evaluated once, on first use.
func Register(name string, f Factory, probe func() error) {
	mu.Lock()
	backends[name] = &registration{factory: f, probe: probe}
	mu.Unlock()
}

// Available reports whether the named backend is registered and its probe passed.
func Available(name string) error {
	mu.RLock()
	r, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return fmt.Errorf("backend %q: %w: not registered", name, transform.ErrUnavailable)
	}
	r.once.Do(func() {
		if r.probe != nil {
			r.err = r.probe()
		}
	})
	if r.err != nil {
		return fmt.Errorf("backend %q: %w: %v", name, transform.ErrUnavailable, r.err)
	}
	return nil
}

// Backends lists the registered names whose probe passed.
func Backends() []string {
	mu.RLock()
	names := make([]string, 0, len(backends))
	for k := range backends {
		names = append(names, k)
	}
	mu.RUnlock()
	sort.Strings(names)
	out := names[:0]
	for _, n := range names {
		if Available(n) == nil {
			out = append(out, n)
		}
	}
	return out
}

// New builds the backend named by cfg.Backend. Unavailable backends fail
// with transform.ErrUnavailable; there is no fallback to another backend.
func New(cfg Config) (Backend, error) {
	if err := Available(cfg.Backend); err != nil {
		return nil, err
	}
	mu.RLock()
	r := backends[cfg.Backend]
	mu.RUnlock()
	b, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", cfg.Backend, err)
	}
	return b, nil
}
