// Package transform defines the unit of computation of a pipeline.
//
// A Transform is a named node wrapping an Impl. The node owns its arguments,
// its unresolved input wiring and two stores: stream (outputs of the last
// call) and params (state captured by fit and reused by every later map).
// Impls are registered by kind together with a capability descriptor so that
// kinds backed by optional backends are excluded before a graph is built.
package transform
