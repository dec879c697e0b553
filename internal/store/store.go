// Package store holds the per-transform key/value state of a pipeline node.
//
// Every node owns two stores: the stream store, holding the outputs of the
// last fit or map call, and the params store, holding what fit captured for
// later map calls. Both only accept the names their owner declared.
package store

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUndeclaredPort is returned when a name outside the allow list is written.
	ErrUndeclaredPort = errors.New("undeclared port")
	// ErrNoSuchKey is returned when reading a name that was never written.
	ErrNoSuchKey = errors.New("no such key")
	// ErrReadOnly is returned when writing to a store frozen by its owner.
	ErrReadOnly = errors.New("read-only store")
)

// Store is a keyed holder with a fixed allow list. Not safe for concurrent writers.
type Store struct {
	kind     string
	allow    map[string]struct{}
	vals     map[string]any
	readOnly bool
}

// New returns an empty store of the given kind ("stream", "params") that
// accepts writes to the allowed names only.
func New(kind string, allow ...string) *Store {
	s := &Store{
		kind:  kind,
		allow: make(map[string]struct{}, len(allow)),
		vals:  make(map[string]any, len(allow)),
	}
	for _, a := range allow {
		s.allow[a] = struct{}{}
	}
	return s
}

func (s *Store) Kind() string { return s.kind }

// Allows reports whether name is part of the allow list.
func (s *Store) Allows(name string) bool {
	_, ok := s.allow[name]
	return ok
}

// Put stores v under name, overwriting any previous value.
func (s *Store) Put(name string, v any) error {
	if s.readOnly {
		return fmt.Errorf("%s %q: %w", s.kind, name, ErrReadOnly)
	}
	if !s.Allows(name) {
		return fmt.Errorf("%s %q: %w", s.kind, name, ErrUndeclaredPort)
	}
	s.vals[name] = v
	return nil
}

// Get returns the value under name.
func (s *Store) Get(name string) (any, error) {
	v, ok := s.vals[name]
	if !ok {
		if !s.Allows(name) {
			return nil, fmt.Errorf("%s %q: %w", s.kind, name, ErrUndeclaredPort)
		}
		return nil, fmt.Errorf("%s %q: %w", s.kind, name, ErrNoSuchKey)
	}
	return v, nil
}

// SetReadOnly toggles rejection of Put. Reset and Restore are unaffected.
func (s *Store) SetReadOnly(ro bool) { s.readOnly = ro }

func (s *Store) Has(name string) bool {
	_, ok := s.vals[name]
	return ok
}

// Keys returns the written names in sorted order.
func (s *Store) Keys() []string {
	out := make([]string, 0, len(s.vals))
	for k := range s.vals {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reset drops every written value. The allow list is kept.
func (s *Store) Reset() {
	clear(s.vals)
}

// Snapshot returns a shallow copy of the written values.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}

// Restore replaces the contents with vals. Every name must be allowed.
func (s *Store) Restore(vals map[string]any) error {
	for k := range vals {
		if !s.Allows(k) {
			return fmt.Errorf("%s %q: %w", s.kind, k, ErrUndeclaredPort)
		}
	}
	s.Reset()
	for k, v := range vals {
		s.vals[k] = v
	}
	return nil
}
