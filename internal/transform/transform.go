package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"benchml/internal/store"
)

// Ports declares what a transform reads and writes.
type Ports struct {
	Required []string // inputs that must be present at call time
	Stream   []string // writable stream names
	Params   []string // writable params names

	// StreamSamples lists stream fields holding one row per sample,
	// StreamKernel those holding a sample×sample kernel.
	StreamSamples []string
	StreamKernel  []string

	// Precompute allows the stream output to be reused across evaluations
	// while args and inputs are unchanged.
	Precompute bool
}

// Impl is the computation behind a Transform.
//
// Fit receives the required inputs and writes to both stores; it must be
// idempotent for identical inputs. Map may only write the stream store and
// reads the params captured by the most recent Fit.
type Impl interface {
	Ports() Ports
	Fit(ctx context.Context, c *Call) error
	Map(ctx context.Context, c *Call) error
}

// Setupper is implemented by impls with one-time initialisation from static
// args. Setup runs at construction and again before a fit when args changed.
type Setupper interface {
	Setup(args Args) error
}

// Defaulter is implemented by impls with default arguments. Only names
// present in the defaults or the construction args can be changed later.
type Defaulter interface {
	Defaults() Args
}

// Call is what an Impl sees during one fit or map.
type Call struct {
	Tag    string
	Inputs Inputs
	Args   Args
	Stream *store.Store
	Params *store.Store
	Log    *slog.Logger
}

// Transform is a named node of a pipeline.
type Transform struct {
	kind   string
	tag    string
	args   Args
	inputs map[string]any
	impl   Impl
	ports  Ports

	stream *store.Store
	params *store.Store

	fitted bool
	gen    int
	dirty  bool
}

// Wrap builds a node around impl. args and inputs are copied; the caller
// keeps ownership of the maps it passed in.
func Wrap(tag string, impl Impl, args Args, inputs map[string]any) (*Transform, error) {
	return build("", tag, impl, args, inputs)
}

func build(kind, tag string, impl Impl, args Args, inputs map[string]any) (*Transform, error) {
	if tag == "" {
		return nil, fmt.Errorf("transform %s: empty tag", kind)
	}
	merged := Args{}
	if d, ok := impl.(Defaulter); ok {
		merged = d.Defaults().Clone()
	}
	for k, v := range args.Clone() {
		merged[k] = v
	}
	in := make(map[string]any, len(inputs))
	for k, v := range inputs {
		in[k] = cloneValue(v)
	}
	ports := impl.Ports()
	t := &Transform{
		kind:   kind,
		tag:    tag,
		args:   merged,
		inputs: in,
		impl:   impl,
		ports:  ports,
		stream: store.New("stream", ports.Stream...),
		params: store.New("params", ports.Params...),
	}
	if err := t.setup(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transform) setup() error {
	t.dirty = false
	s, ok := t.impl.(Setupper)
	if !ok {
		return nil
	}
	if err := s.Setup(t.args); err != nil {
		return fmt.Errorf("transform %s: setup: %w", t.tag, err)
	}
	return nil
}

func (t *Transform) Tag() string          { return t.tag }
func (t *Transform) Kind() string         { return t.kind }
func (t *Transform) Ports() Ports         { return t.ports }
func (t *Transform) Stream() *store.Store { return t.stream }
func (t *Transform) Params() *store.Store { return t.params }
func (t *Transform) Fitted() bool         { return t.fitted }
func (t *Transform) Generation() int      { return t.gen }
func (t *Transform) Args() Args           { return t.args.Clone() }
func (t *Transform) Impl() Impl           { return t.impl }

// Inputs returns the unresolved input wiring, sorted by formal name.
func (t *Transform) Inputs() []string {
	out := make([]string, 0, len(t.inputs))
	for k := range t.inputs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Input returns the unresolved wiring of one formal input.
func (t *Transform) Input(name string) (any, bool) {
	v, ok := t.inputs[name]
	return v, ok
}

func (t *Transform) Arg(name string) (any, bool) {
	v, ok := t.args[name]
	return v, ok
}

// SetArg overwrites an existing argument. The change takes effect at the
// next Fit, which re-runs setup.
func (t *Transform) SetArg(name string, v any) error {
	if _, ok := t.args[name]; !ok {
		return fmt.Errorf("transform %s: %q: %w", t.tag, name, ErrUnknownArg)
	}
	t.args[name] = cloneValue(v)
	t.dirty = true
	return nil
}

// Fit runs the training phase. Both stores are reset first, so a fit starts
// a new params generation.
func (t *Transform) Fit(ctx context.Context, in Inputs, log *slog.Logger) error {
	if err := t.checkRequired(in); err != nil {
		return err
	}
	if t.dirty {
		if err := t.setup(); err != nil {
			return err
		}
	}
	t.fitted = false
	t.stream.Reset()
	t.params.Reset()
	t.params.SetReadOnly(false)
	if err := t.impl.Fit(ctx, t.call(in, log)); err != nil {
		return fmt.Errorf("transform %s: fit: %w", t.tag, err)
	}
	t.fitted = true
	t.gen++
	return nil
}

// Map applies the fitted transform to new inputs.
func (t *Transform) Map(ctx context.Context, in Inputs, log *slog.Logger) error {
	if !t.fitted {
		return fmt.Errorf("transform %s: %w", t.tag, ErrNotFitted)
	}
	if err := t.checkRequired(in); err != nil {
		return err
	}
	t.stream.Reset()
	t.params.SetReadOnly(true)
	defer t.params.SetReadOnly(false)
	if err := t.impl.Map(ctx, t.call(in, log)); err != nil {
		return fmt.Errorf("transform %s: map: %w", t.tag, err)
	}
	return nil
}

// Restore installs cached outputs as if a call had produced them. When
// params is non-nil the node counts as fitted, and pending argument changes
// are set up as a Fit would have done.
func (t *Transform) Restore(stream, params map[string]any) error {
	if params != nil && t.dirty {
		if err := t.setup(); err != nil {
			return err
		}
	}
	if err := t.stream.Restore(stream); err != nil {
		return err
	}
	if params != nil {
		if err := t.params.Restore(params); err != nil {
			return err
		}
		t.fitted = true
		t.gen++
	}
	return nil
}

func (t *Transform) checkRequired(in Inputs) error {
	for _, r := range t.ports.Required {
		if _, ok := in[r]; !ok {
			return fmt.Errorf("transform %s: input %q: %w", t.tag, r, ErrMissingInput)
		}
	}
	return nil
}

func (t *Transform) call(in Inputs, log *slog.Logger) *Call {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Call{
		Tag:    t.tag,
		Inputs: in,
		Args:   t.args,
		Stream: t.stream,
		Params: t.params,
		Log:    log.With("tag", t.tag),
	}
}
