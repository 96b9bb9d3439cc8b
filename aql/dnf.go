package aql

import "github.com/banyanmesh/core/routing"

// ToDNF converts a TagExpr into the disjunctive-normal-form routing
// table wants (spec §4.7: "DNF conversion itself is the AQL
// tag-expression compiler's job"). Only Tag/AppId/AllEvents atoms are
// routing-relevant (routing.Atom has no other case); range bounds
// (from/to/KEY/TIME) and isLocal restrict a query's results after
// routing has already picked a stream, so they are dropped from the
// produced clauses rather than rejected — a clause built purely from
// those atoms becomes an always-true clause (an implicit allEvents).
func (t *TagExpr) ToDNF() routing.DNF {
	return normalizeDNF(collectDNF(t))
}

// collectDNF returns the DNF as a slice of conjunctive atom slices,
// before dropping non-routing atoms.
func collectDNF(t *TagExpr) [][]*TagAtom {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TagExprAtom:
		return [][]*TagAtom{{t.Atom}}
	case TagExprOr:
		return append(collectDNF(t.Left), collectDNF(t.Right)...)
	case TagExprAnd:
		left := collectDNF(t.Left)
		right := collectDNF(t.Right)
		out := make([][]*TagAtom, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				clause := make([]*TagAtom, 0, len(l)+len(r))
				clause = append(clause, l...)
				clause = append(clause, r...)
				out = append(out, clause)
			}
		}
		return out
	}
	return nil
}

func normalizeDNF(clauses [][]*TagAtom) routing.DNF {
	out := make(routing.DNF, 0, len(clauses))
	for _, clause := range clauses {
		var rc routing.Clause
		for _, a := range clause {
			switch a.Kind {
			case TagAtomTag:
				rc = append(rc, routing.TagAtom(a.Tag))
			case TagAtomAppId:
				rc = append(rc, routing.AppIdAtom(a.AppId))
			case TagAtomAllEvents:
				rc = append(rc, routing.AllEventsAtom())
			}
		}
		if len(rc) == 0 {
			rc = routing.Clause{routing.AllEventsAtom()}
		}
		out = append(out, rc)
	}
	return out
}
