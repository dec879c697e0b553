package transform

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh Impl for one node.
type Factory func() Impl

// Capability describes whether a kind can run in this process. Probe is
// evaluated once per kind; a nil Probe means always available.
type Capability struct {
	Probe func() error
}

type entry struct {
	factory Factory
	capa    Capability

	once sync.Once
	err  error
}

var (
	regMu    sync.RWMutex
	registry = map[string]*entry{}
)

// Register is called from each kind's init().
func Register(kind string, f Factory, c Capability) {
	regMu.Lock()
	registry[kind] = &entry{factory: f, capa: c}
	regMu.Unlock()
}

func lookup(kind string) (*entry, error) {
	regMu.RLock()
	e, ok := registry[kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	return e, nil
}

// Available returns nil when kind is registered and its probe passed.
func Available(kind string) error {
	e, err := lookup(kind)
	if err != nil {
		return err
	}
	e.once.Do(func() {
		if e.capa.Probe != nil {
			e.err = e.capa.Probe()
		}
	})
	if e.err != nil {
		return fmt.Errorf("%q: %w: %v", kind, ErrUnavailable, e.err)
	}
	return nil
}

// Kinds returns every registered kind whose probe passed, sorted.
func Kinds() []string {
	regMu.RLock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	regMu.RUnlock()
	sort.Strings(names)

	out := names[:0]
	for _, k := range names {
		if Available(k) == nil {
			out = append(out, k)
		}
	}
	return out
}

// New builds a node of the given kind. Unavailable kinds fail here, before
// any computation starts.
func New(kind, tag string, args Args, inputs map[string]any) (*Transform, error) {
	if err := Available(kind); err != nil {
		return nil, fmt.Errorf("transform %s: %w", tag, err)
	}
	e, _ := lookup(kind)
	return build(kind, tag, e.factory(), args, inputs)
}
