package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"benchml/internal/cache"
	"benchml/internal/hyper"
	"benchml/internal/telemetry"
	"benchml/internal/transform"
)

// Mode selects the phase of an evaluation pass.
type Mode string

const (
	Fit Mode = "fit"
	Map Mode = "map"
)

type node struct {
	t      *transform.Transform
	inputs []binding
	fitKey string
}

// Module is an ordered graph of transforms. Execution order is declaration
// order; every reference is resolved once when the module is built.
type Module struct {
	tag       string
	nodes     []*node
	index     map[string]int
	hyper     *hyper.Grid
	broadcast map[string]string
	outputs   map[string]string
	outEdges  map[string]edge

	log     *slog.Logger
	cache   cache.Cache
	metrics *telemetry.Metrics

	mu sync.Mutex
}

// Option configures a Module.
type Option func(*Module)

func WithHyper(g *hyper.Grid) Option { return func(m *Module) { m.hyper = g } }

// WithBroadcast injects field → reference into every transform that runs
// after the producer, unless the transform wires that field explicitly.
func WithBroadcast(b map[string]string) Option {
	return func(m *Module) {
		for k, v := range b {
			m.broadcast[k] = v
		}
	}
}

// WithOutputs declares what Evaluate returns: name → reference.
func WithOutputs(o map[string]string) Option {
	return func(m *Module) {
		for k, v := range o {
			m.outputs[k] = v
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(m *Module) { m.log = l } }

// WithCache enables reuse of outputs of transforms that declare Precompute.
func WithCache(c cache.Cache) Option { return func(m *Module) { m.cache = c } }

func WithMetrics(mt *telemetry.Metrics) Option { return func(m *Module) { m.metrics = mt } }

// NewModule builds the graph and resolves every input, broadcast and output
// reference. Unknown tags, forward references and undeclared fields fail here.
func NewModule(tag string, transforms []*transform.Transform, opts ...Option) (*Module, error) {
	m := &Module{
		tag:       tag,
		index:     make(map[string]int, len(transforms)),
		broadcast: map[string]string{},
		outputs:   map[string]string{},
		outEdges:  map[string]edge{},
		log:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("module", tag)

	r := &resolver{index: m.index}
	for i, t := range transforms {
		if t.Tag() == Scope {
			return nil, fmt.Errorf("module %s: tag %q is reserved: %w", tag, Scope, ErrDuplicateTag)
		}
		if _, dup := m.index[t.Tag()]; dup {
			return nil, fmt.Errorf("module %s: %q: %w", tag, t.Tag(), ErrDuplicateTag)
		}
		m.index[t.Tag()] = i
		n := &node{t: t}
		m.nodes = append(m.nodes, n)
		r.nodes = m.nodes
	}

	bcast, err := m.resolveBroadcast(r)
	if err != nil {
		return nil, err
	}
	for i, n := range m.nodes {
		for _, name := range n.t.Inputs() {
			v, _ := n.t.Input(name)
			b, err := r.bind(name, v, n.t.Tag(), i)
			if err != nil {
				return nil, fmt.Errorf("module %s: %w", tag, err)
			}
			n.inputs = append(n.inputs, b)
		}
		for _, name := range sortedKeys(bcast) {
			e := bcast[name]
			if e.node >= i || slices.ContainsFunc(n.inputs, func(b binding) bool { return b.name == name }) {
				continue
			}
			n.inputs = append(n.inputs, binding{name: name, edges: []edge{e}})
		}
	}
	for _, name := range sortedKeys(m.outputs) {
		e, err := r.edge(m.outputs[name], tag+".outputs", len(m.nodes))
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", tag, err)
		}
		m.outEdges[name] = e
	}
	return m, nil
}

func (m *Module) resolveBroadcast(r *resolver) (map[string]edge, error) {
	out := make(map[string]edge, len(m.broadcast))
	for _, name := range sortedKeys(m.broadcast) {
		e, err := r.edge(m.broadcast[name], m.tag+".broadcast", len(m.nodes))
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.tag, err)
		}
		out[name] = e
	}
	return out, nil
}

func (m *Module) Tag() string        { return m.tag }
func (m *Module) Hyper() *hyper.Grid { return m.hyper }

// Transforms returns the nodes in execution order.
func (m *Module) Transforms() []*transform.Transform {
	out := make([]*transform.Transform, len(m.nodes))
	for i, n := range m.nodes {
		out[i] = n.t
	}
	return out
}

// Transform returns the node with the given tag.
func (m *Module) Transform(tag string) (*transform.Transform, bool) {
	i, ok := m.index[tag]
	if !ok {
		return nil, false
	}
	return m.nodes[i].t, true
}

// SetArg overwrites an argument of one transform; Module is a hyper.Target.
func (m *Module) SetArg(tag, arg string, v any) error {
	t, ok := m.Transform(tag)
	if !ok {
		return fmt.Errorf("module %s: %q: %w", m.tag, tag, ErrUnknownTransform)
	}
	return t.SetArg(arg, v)
}

// CheckArg reports whether tag.arg exists without changing it.
func (m *Module) CheckArg(tag, arg string) error {
	t, ok := m.Transform(tag)
	if !ok {
		return fmt.Errorf("module %s: %q: %w", m.tag, tag, ErrUnknownTransform)
	}
	if _, ok := t.Arg(arg); !ok {
		return fmt.Errorf("transform %s: %q: %w", tag, arg, transform.ErrUnknownArg)
	}
	return nil
}

// Evaluate runs every transform once, in declared order, and returns the
// module outputs. inputs are addressed as "input.<field>".
func (m *Module) Evaluate(ctx context.Context, mode Mode, inputs map[string]any) (map[string]any, error) {
	if mode != Fit && mode != Map {
		return nil, fmt.Errorf("module %s: unknown mode %q", m.tag, mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics != nil {
		ctx = telemetry.NewContext(ctx, m.metrics)
	}

	for _, n := range m.nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := m.gather(n, inputs)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.tag, err)
		}
		start := time.Now()
		hit, err := m.run(ctx, mode, n, in)
		elapsed := time.Since(start)
		m.metrics.ObserveTransform(m.tag, n.t.Tag(), string(mode), elapsed)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.tag, err)
		}
		m.log.Debug("transform done", "tag", n.t.Tag(), "mode", mode, "cached", hit, "elapsed", elapsed)
	}

	out := make(map[string]any, len(m.outEdges))
	for name, e := range m.outEdges {
		v, err := m.value(e, m.tag+".outputs", inputs)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.tag, err)
		}
		out[name] = v
	}
	return out, nil
}

func (m *Module) run(ctx context.Context, mode Mode, n *node, in transform.Inputs) (bool, error) {
	if m.cache == nil || !n.t.Ports().Precompute {
		if mode == Fit {
			return false, n.t.Fit(ctx, in, m.log)
		}
		return false, n.t.Map(ctx, in, m.log)
	}

	var key string
	var err error
	if mode == Fit {
		key, err = cache.Fingerprint(m.tag, n.t.Tag(), n.t.Kind(), n.t.Args(), in)
	} else {
		if !n.t.Fitted() || n.fitKey == "" {
			return false, n.t.Map(ctx, in, m.log)
		}
		key, err = cache.Fingerprint(n.fitKey, string(Map), in)
	}
	if err != nil {
		m.log.Debug("precompute disabled for call", "tag", n.t.Tag(), "err", err)
		if mode == Fit {
			n.fitKey = ""
			return false, n.t.Fit(ctx, in, m.log)
		}
		return false, n.t.Map(ctx, in, m.log)
	}

	e, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("precompute %s: %w", n.t.Tag(), err)
	}
	m.metrics.CacheLookup(ok)
	if ok {
		if mode == Fit {
			n.fitKey = key
			if e.Params == nil {
				e.Params = map[string]any{}
			}
			return true, n.t.Restore(e.Stream, e.Params)
		}
		return true, n.t.Restore(e.Stream, nil)
	}

	entry := cache.Entry{}
	if mode == Fit {
		if err := n.t.Fit(ctx, in, m.log); err != nil {
			return false, err
		}
		n.fitKey = key
		entry.Params = n.t.Params().Snapshot()
	} else if err := n.t.Map(ctx, in, m.log); err != nil {
		return false, err
	}
	entry.Stream = n.t.Stream().Snapshot()
	if err := m.cache.Put(ctx, key, entry); err != nil {
		return false, fmt.Errorf("precompute %s: %w", n.t.Tag(), err)
	}
	return false, nil
}

func (m *Module) gather(n *node, scope map[string]any) (transform.Inputs, error) {
	in := make(transform.Inputs, len(n.inputs))
	for _, b := range n.inputs {
		if b.isLit {
			in[b.name] = b.literal
			continue
		}
		if !b.list {
			v, err := m.value(b.edges[0], n.t.Tag(), scope)
			if err != nil {
				return nil, err
			}
			in[b.name] = v
			continue
		}
		vals := make([]any, len(b.edges))
		for i, e := range b.edges {
			v, err := m.value(e, n.t.Tag(), scope)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		in[b.name] = vals
	}
	return in, nil
}

func (m *Module) value(e edge, consumer string, scope map[string]any) (any, error) {
	if e.node < 0 {
		v, ok := scope[e.field]
		if !ok {
			return nil, &ResolutionError{Ref: e.ref, Consumer: consumer, Cause: CauseField, Name: e.field}
		}
		return v, nil
	}
	v, err := m.nodes[e.node].t.Stream().Get(e.field)
	if err != nil {
		return nil, &ResolutionError{Ref: e.ref, Consumer: consumer, Cause: CauseField, Name: e.field, Err: err}
	}
	return v, nil
}

// SliceOutputs restricts the outputs of a run to the samples in idx using
// the sample and kernel markers of the producing transforms. Scope values
// and unmarked fields are returned as is.
func (m *Module) SliceOutputs(out map[string]any, idx []int) (map[string]any, error) {
	res := make(map[string]any, len(out))
	for name, v := range out {
		res[name] = v
		e, ok := m.outEdges[name]
		if !ok || e.node < 0 {
			continue
		}
		ports := m.nodes[e.node].t.Ports()
		var err error
		switch {
		case slices.Contains(ports.StreamSamples, e.field):
			res[name], err = transform.SliceSamples(v, idx)
		case slices.Contains(ports.StreamKernel, e.field):
			res[name], err = transform.SliceKernel(v, idx)
		}
		if err != nil {
			return nil, fmt.Errorf("module %s: output %s: %w", m.tag, name, err)
		}
	}
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
