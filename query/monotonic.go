package query

import "github.com/banyanmesh/core/model"

// TimeTravel marks that a monotonic subscription's source produced an
// event older than the last one it emitted; the client is expected to
// restart its subscription from NewStart (spec §4.8).
type TimeTravel struct {
	NewStart model.EventKey
}

// MonotonicItem is emitted by SubscribeMonotonic: exactly one of Event
// or TimeTravel is set.
type MonotonicItem struct {
	Event      *model.Event
	TimeTravel *TimeTravel
}

// monotonicGuard wraps a channel of events and inserts a TimeTravel
// marker whenever the next event's key regresses relative to the last
// one emitted for this session.
type monotonicGuard struct {
	last    model.EventKey
	hasLast bool
}

// Observe feeds the next event through the guard, returning the items
// to emit (a TimeTravel marker followed by the event, or just the
// event).
func (g *monotonicGuard) Observe(e model.Event) []MonotonicItem {
	var items []MonotonicItem
	if g.hasLast && e.Key.Less(g.last) {
		items = append(items, MonotonicItem{TimeTravel: &TimeTravel{NewStart: e.Key}})
	}
	ev := e
	items = append(items, MonotonicItem{Event: &ev})
	g.last = e.Key
	g.hasLast = true
	return items
}

// SubscribeMonotonic wraps an event channel with time-travel
// detection, forwarding onto the returned channel until src closes.
func SubscribeMonotonic(src <-chan model.Event) <-chan MonotonicItem {
	out := make(chan MonotonicItem)
	go func() {
		defer close(out)
		g := &monotonicGuard{}
		for e := range src {
			for _, item := range g.Observe(e) {
				out <- item
			}
		}
	}()
	return out
}
