package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"benchml/internal/transform"
)

// Scope is the reserved tag addressing the values passed to Evaluate.
const Scope = "input"

var (
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrDuplicateTag        = errors.New("duplicate tag")
	ErrUnknownTransform    = errors.New("unknown transform")
)

// Cause tells which part of a reference failed to resolve.
type Cause string

const (
	CauseSyntax Cause = "syntax"
	CauseTag    Cause = "tag"
	CauseField  Cause = "field"
)

// ResolutionError names the offending reference, the consumer that used it
// and whether the tag or the field is unknown.
type ResolutionError struct {
	Ref      string
	Consumer string
	Cause    Cause
	Name     string // the unknown tag or field
	Err      error  // optional underlying cause
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("unresolved reference %q in %q", e.Ref, e.Consumer)
	switch e.Cause {
	case CauseTag:
		msg += fmt.Sprintf(": unknown tag %q", e.Name)
	case CauseField:
		msg += fmt.Sprintf(": unknown field %q", e.Name)
	default:
		msg += ": want tag.field"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnresolvedReference, e.Err}
	}
	return []error{ErrUnresolvedReference}
}

// edge is a resolved reference: node index (or -1 for the scope) and field.
type edge struct {
	ref   string
	node  int
	field string
}

// binding is one formal input of a node, resolved once at build time.
type binding struct {
	name    string
	literal any
	isLit   bool
	list    bool
	edges   []edge
}

// resolver turns reference strings into edges against the nodes declared
// so far.
type resolver struct {
	index map[string]int
	nodes []*node
}

func (r *resolver) edge(ref, consumer string, before int) (edge, error) {
	tag, field, ok := strings.Cut(ref, ".")
	if !ok || tag == "" || field == "" {
		return edge{}, &ResolutionError{Ref: ref, Consumer: consumer, Cause: CauseSyntax}
	}
	if tag == Scope {
		return edge{ref: ref, node: -1, field: field}, nil
	}
	idx, ok := r.index[tag]
	if !ok || idx >= before {
		return edge{}, &ResolutionError{Ref: ref, Consumer: consumer, Cause: CauseTag, Name: tag}
	}
	if !slices.Contains(r.nodes[idx].t.Ports().Stream, field) {
		return edge{}, &ResolutionError{Ref: ref, Consumer: consumer, Cause: CauseField, Name: field}
	}
	return edge{ref: ref, node: idx, field: field}, nil
}

// bind resolves one input wiring value. Strings are references, string
// lists are reference lists, transform.Literal and every other value is a
// literal.
func (r *resolver) bind(name string, v any, consumer string, before int) (binding, error) {
	b := binding{name: name}
	switch x := v.(type) {
	case transform.Literal:
		b.isLit, b.literal = true, x.V
		return b, nil
	case string:
		e, err := r.edge(x, consumer, before)
		if err != nil {
			return b, err
		}
		b.edges = []edge{e}
		return b, nil
	case []string:
		return r.bindList(b, x, consumer, before)
	case []any:
		refs := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				b.isLit, b.literal = true, v
				return b, nil
			}
			refs = append(refs, s)
		}
		return r.bindList(b, refs, consumer, before)
	default:
		b.isLit, b.literal = true, v
		return b, nil
	}
}

func (r *resolver) bindList(b binding, refs []string, consumer string, before int) (binding, error) {
	b.list = true
	for _, ref := range refs {
		e, err := r.edge(ref, consumer, before)
		if err != nil {
			return b, err
		}
		b.edges = append(b.edges, e)
	}
	return b, nil
}
