// Package hyper compiles hyperparameter groups into an exhaustive grid.
//
// A Group binds one or more "tag.arg" paths to candidate lists of equal
// length; its i-th value sets every path to its i-th candidate at once. The
// grid is the cartesian product across groups, enumerated with the first
// group as the outermost loop.
package hyper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrGridPath is returned for malformed paths or paths the target rejects.
	ErrGridPath = errors.New("grid path")
	// ErrGroupLength is returned when the members of a group disagree in length.
	ErrGroupLength = errors.New("group member lengths differ")
)

// Target receives argument assignments; pipeline.Module implements it.
type Target interface {
	SetArg(tag, arg string, v any) error
}

// Checker is implemented by targets that can tell whether an argument
// exists without writing it.
type Checker interface {
	CheckArg(tag, arg string) error
}

// Assignment sets one argument of one transform.
type Assignment struct {
	Path  string
	Tag   string
	Arg   string
	Value any
}

// Point is one full assignment of every declared path.
type Point []Assignment

// Map returns path → value.
func (p Point) Map() map[string]any {
	out := make(map[string]any, len(p))
	for _, a := range p {
		out[a.Path] = a.Value
	}
	return out
}

func (p Point) String() string {
	parts := make([]string, len(p))
	for i, a := range p {
		parts[i] = fmt.Sprintf("%s=%v", a.Path, a.Value)
	}
	return strings.Join(parts, " ")
}

// Group is one axis of the grid.
type Group struct {
	paths  []string
	tags   []string
	args   []string
	values [][]any // values[pathIdx][candidateIdx]
}

// NewGroup builds a group from path → candidates. Paths are kept sorted so
// the assignment order inside a point is deterministic.
func NewGroup(members map[string][]any) (Group, error) {
	var g Group
	paths := make([]string, 0, len(members))
	for p := range members {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return Group{}, fmt.Errorf("group has no paths: %w", ErrGroupLength)
	}
	n := -1
	for _, p := range paths {
		tag, arg, err := SplitPath(p)
		if err != nil {
			return Group{}, err
		}
		vals := members[p]
		if len(vals) == 0 {
			return Group{}, fmt.Errorf("%q has no candidates: %w", p, ErrGroupLength)
		}
		if n >= 0 && len(vals) != n {
			return Group{}, fmt.Errorf("%q has %d candidates, want %d: %w", p, len(vals), n, ErrGroupLength)
		}
		n = len(vals)
		g.paths = append(g.paths, p)
		g.tags = append(g.tags, tag)
		g.args = append(g.args, arg)
		g.values = append(g.values, append([]any(nil), vals...))
	}
	return g, nil
}

// MustGroup is NewGroup for statically known groups.
func MustGroup(members map[string][]any) Group {
	g, err := NewGroup(members)
	if err != nil {
		panic(err)
	}
	return g
}

// Len is the number of candidates of the group.
func (g Group) Len() int {
	if len(g.values) == 0 {
		return 0
	}
	return len(g.values[0])
}

func (g Group) Paths() []string { return append([]string(nil), g.paths...) }

func (g Group) at(i int) []Assignment {
	out := make([]Assignment, len(g.paths))
	for k := range g.paths {
		out[k] = Assignment{Path: g.paths[k], Tag: g.tags[k], Arg: g.args[k], Value: g.values[k][i]}
	}
	return out
}

// Grid is the cartesian product of its groups.
type Grid struct {
	groups []Group
}

func NewGrid(groups ...Group) *Grid {
	return &Grid{groups: append([]Group(nil), groups...)}
}

func (g *Grid) Groups() []Group { return append([]Group(nil), g.groups...) }

// Size is the product of the group lengths. A grid without groups has one
// empty point.
func (g *Grid) Size() int {
	if g == nil {
		return 1
	}
	n := 1
	for _, grp := range g.groups {
		n *= grp.Len()
	}
	return n
}

// Points enumerates the grid, first group outermost.
func (g *Grid) Points() []Point {
	size := g.Size()
	out := make([]Point, 0, size)
	for k := 0; k < size; k++ {
		out = append(out, g.Point(k))
	}
	return out
}

// Point returns the k-th point of the enumeration order.
func (g *Grid) Point(k int) Point {
	if g == nil {
		return Point{}
	}
	idx := make([]int, len(g.groups))
	for i := len(g.groups) - 1; i >= 0; i-- {
		n := g.groups[i].Len()
		idx[i] = k % n
		k /= n
	}
	var p Point
	for i, grp := range g.groups {
		p = append(p, grp.at(idx[i])...)
	}
	return p
}

// PathError reports an assignment the target could not take.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return fmt.Sprintf("grid path %q: %v", e.Path, e.Err) }
func (e *PathError) Unwrap() []error {
	return []error{ErrGridPath, e.Err}
}

// Apply writes every assignment of p into target. When target is a Checker
// every path is checked first and a rejected path leaves target untouched;
// otherwise assignments before the rejected path stay written.
func Apply(p Point, target Target) error {
	if c, ok := target.(Checker); ok {
		for _, a := range p {
			if err := c.CheckArg(a.Tag, a.Arg); err != nil {
				return &PathError{Path: a.Path, Err: err}
			}
		}
	}
	for _, a := range p {
		if err := target.SetArg(a.Tag, a.Arg, a.Value); err != nil {
			return &PathError{Path: a.Path, Err: err}
		}
	}
	return nil
}

// SplitPath splits "tag.arg" on the first dot.
func SplitPath(p string) (tag, arg string, err error) {
	tag, arg, ok := strings.Cut(p, ".")
	if !ok || tag == "" || arg == "" {
		return "", "", fmt.Errorf("%q is not tag.arg: %w", p, ErrGridPath)
	}
	return tag, arg, nil
}
