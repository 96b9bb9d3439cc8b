// Package routing implements the event-routing table: stream-name
// lookup plus an ordered list of DNF tag-expression routes, first
// match wins, falling back to the default stream.
/*
 * Adapted from the aistore xact/xreg registry idiom: an ordered slice
 * searched front-to-back for the first matching entry, rather than a
 * map (insertion order is semantically meaningful here, per spec §3's
 * "matching walks the list in insertion order").
 */
package routing

import (
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/model"
)

// Atom is one leaf condition of a route clause: a required tag, the
// wildcard AllEvents, or a match against the event's publishing AppId.
type Atom struct {
	Tag       model.Tag
	AppId     model.AppId
	AllEvents bool
}

func TagAtom(t model.Tag) Atom       { return Atom{Tag: t} }
func AppIdAtom(a model.AppId) Atom   { return Atom{AppId: a} }
func AllEventsAtom() Atom            { return Atom{AllEvents: true} }

func (a Atom) matches(ts model.TagSet, appID model.AppId) bool {
	switch {
	case a.AllEvents:
		return true
	case a.AppId != "":
		return a.AppId == appID
	default:
		return ts.Has(a.Tag)
	}
}

// Clause is a conjunction of Atoms: satisfied iff every atom matches.
type Clause []Atom

func (c Clause) matches(ts model.TagSet, appID model.AppId) bool {
	for _, a := range c {
		if !a.matches(ts, appID) {
			return false
		}
	}
	return true
}

// DNF is a disjunction of Clauses (disjunctive normal form): it
// matches iff any clause is satisfied.
type DNF []Clause

func (d DNF) Matches(ts model.TagSet, appID model.AppId) bool {
	for _, c := range d {
		if c.matches(ts, appID) {
			return true
		}
	}
	return false
}

type route struct {
	expr DNF
	nr   model.StreamNr
}

// Table maps stream names to numbers and holds the ordered tag-route
// list used by the event store's append path.
type Table struct {
	names     map[string]model.StreamNr
	routes    []route
	maxStream model.StreamNr
	hasMax    bool
}

// New seeds the table with the well-known streams (spec §4.7: "At
// first startup the table is seeded with default->0, discovery->1,
// metrics->2, files->3").
func New() *Table {
	t := &Table{names: make(map[string]model.StreamNr)}
	for name, nr := range map[string]model.StreamNr{
		"default": model.DefaultStreamNr, "discovery": model.DiscoveryStreamNr,
		"metrics": model.MetricsStreamNr, "files": model.FilesStreamNr,
	} {
		t.names[name] = nr
		t.bumpMax(nr)
	}
	return t
}

func (t *Table) bumpMax(nr model.StreamNr) {
	if !t.hasMax || nr > t.maxStream {
		t.maxStream = nr
		t.hasMax = true
	}
}

// AddStream binds name to nr if given (logging on overwrite), or
// otherwise allocates max_stream_nr+1 (0 if the table is empty) —
// unless name already exists, in which case it is a no-op returning
// (0, false).
func (t *Table) AddStream(name string, nr *model.StreamNr) (model.StreamNr, bool) {
	if nr == nil {
		if _, exists := t.names[name]; exists {
			return 0, false
		}
		next := model.DefaultStreamNr
		if t.hasMax {
			next = t.maxStream + 1
		}
		t.names[name] = next
		t.bumpMax(next)
		return next, true
	}
	if cur, exists := t.names[name]; exists && cur != *nr {
		nlog.Warningf("routing: stream name %q rebound from %d to %d", name, cur, *nr)
	}
	t.names[name] = *nr
	t.bumpMax(*nr)
	return *nr, true
}

// GetStreamByName looks up a previously added stream name.
func (t *Table) GetStreamByName(name string) (model.StreamNr, bool) {
	nr, ok := t.names[name]
	return nr, ok
}

// AddRoute converts tagExpr to DNF (the caller supplies it already
// converted — DNF conversion itself is the AQL tag-expression
// compiler's job), binds streamName via AddStream, and appends the
// route. No duplicate-route detection is performed: routes targeting
// the same stream coexist, and the first (earliest-inserted) one
// always wins at lookup time.
func (t *Table) AddRoute(expr DNF, streamName string) model.StreamNr {
	nr, _ := t.AddStream(streamName, nil)
	if existing, ok := t.GetStreamByName(streamName); ok {
		nr = existing
	}
	t.routes = append(t.routes, route{expr: expr, nr: nr})
	return nr
}

// GetMatchingStreamNr walks the route list in insertion order and
// returns the first match; it falls back to the default stream.
func (t *Table) GetMatchingStreamNr(ts model.TagSet, appID model.AppId) model.StreamNr {
	for _, r := range t.routes {
		if r.expr.Matches(ts, appID) {
			return r.nr
		}
	}
	return model.DefaultStreamNr
}
