package eval

import (
	"context"

	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/offsetmap"
)

// EventSource is the subset of *store.EventStore a query runs
// against. It's declared here rather than imported from store so
// that package store never needs to know eval exists.
type EventSource interface {
	Self() model.NodeId
	Offsets() (present, target *offsetmap.OffsetMap)
	BoundedForward(ctx context.Context, filter func(model.Event) bool, from, to *offsetmap.OffsetMap) (<-chan model.Event, error)
	BoundedBackward(ctx context.Context, filter func(model.Event) bool, from, to *offsetmap.OffsetMap) (<-chan model.Event, error)
	UnboundedForward(ctx context.Context, filter func(model.Event) bool, from *offsetmap.OffsetMap) (<-chan model.Event, error)
}

// Scope is one link of the LET-binding chain (spec §4.6): the root
// scope carries the query's source and current-value context; every
// LET op pushes a child scope that shadows its parent for the rest of
// the pipeline.
type Scope struct {
	parent   *Scope
	bindings map[string]Value

	// Root-only fields; zero on every child scope.
	source EventSource

	// current is the value `_`, KEY, TIME, TAGS and APP resolve
	// against. It changes as the pipeline processes each event, and as
	// sub-expressions descend into object/array literals.
	current Value
}

// NewRootScope seeds a scope with the query's event source; current
// starts Null/Synthetic since no event is in scope yet.
func NewRootScope(source EventSource) *Scope {
	return &Scope{source: source, current: Null(Synthetic())}
}

// WithCurrent returns a child scope with the same bindings but a new
// current value, used when the pipeline advances to the next event or
// descends into a sub-expression with its own `_`.
func (s *Scope) WithCurrent(v Value) *Scope {
	return &Scope{parent: s, current: v}
}

// Bind returns a child scope with name bound to v, implementing `LET
// name := expr` (spec §4.6: "inserts a binding for all following
// ops").
func (s *Scope) Bind(name string, v Value) *Scope {
	return &Scope{parent: s, bindings: map[string]Value{name: v}, current: s.Current()}
}

// Lookup walks the parent chain for name, spec's "lookup walks up the
// parent chain."
func (s *Scope) Lookup(name string) (Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.bindings != nil {
			if v, ok := sc.bindings[name]; ok {
				return v, true
			}
		}
	}
	return Value{}, false
}

// Current returns `_`. WithCurrent/Bind always set it explicitly at
// construction, so every scope (root included) carries its own value.
func (s *Scope) Current() Value { return s.current }

// Source returns the scope chain's root EventSource.
func (s *Scope) Source() EventSource {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.source != nil {
			return sc.source
		}
	}
	return nil
}
