// Package hk provides a mechanism for registering cleanup/periodic
// functions which are invoked at specified intervals; each callback
// returns the delay until its next run.
/*
 * Adapted from the aistore hk package. Only the package's call-site
 * contract survived in the retrieved teacher subset (xact/xreg.go's
 * hk.Reg("x-old"+hk.NameSuffix, dreg.hkDelOld, 0), transport/api.go's
 * hk.Unreg(...), the housekeeper_suite_test.go harness calling
 * hk.TestInit/hk.DefaultHK.Run/hk.WaitStarted) — the registry
 * implementation itself is rebuilt from that contract.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"
)

// NameSuffix disambiguates registrations across repeated test init.
const NameSuffix = ""

// UnregInterval is returned by a registered func to unregister itself.
const UnregInterval time.Duration = -1

type request struct {
	name    string
	fn      func() time.Duration
	due     time.Time
	unreg   bool
}

type entry struct {
	name string
	fn   func() time.Duration
	due  time.Time
	idx  int
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].idx, h[j].idx = i, j }
func (h *entryHeap) Push(x any)         { e := x.(*entry); e.idx = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Housekeeper runs a set of named periodic callbacks; each callback
// returns the delay until it should next fire, or UnregInterval to
// self-unregister.
type Housekeeper struct {
	mu      sync.Mutex
	byName  map[string]*entry
	pq      entryHeap
	reqCh   chan request
	stopCh  chan struct{}
	started chan struct{}
	once    sync.Once
}

// DefaultHK is the process-wide housekeeper instance.
var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*entry),
		reqCh:   make(chan request, 64),
		stopCh:  make(chan struct{}),
		started: make(chan struct{}),
	}
}

// Reg registers fn to run after d (first fire); fn's return value is the
// delay until its next run, or UnregInterval to stop. d == 0 means "run
// immediately, then as fn dictates."
func Reg(name string, fn func() time.Duration, d time.Duration) { DefaultHK.Reg(name, fn, d) }
func Unreg(name string)                                          { DefaultHK.Unreg(name) }

func (h *Housekeeper) Reg(name string, fn func() time.Duration, d time.Duration) {
	h.reqCh <- request{name: name, fn: fn, due: time.Now().Add(d)}
}

func (h *Housekeeper) Unreg(name string) {
	h.reqCh <- request{name: name, unreg: true}
}

// WaitStarted blocks until Run has entered its loop (used by tests to
// avoid racing registrations against a not-yet-running housekeeper).
func (h *Housekeeper) WaitStarted() { <-h.started }

func WaitStarted() { DefaultHK.WaitStarted() }

// Run is the housekeeper's main loop; it returns when Stop is called.
func (h *Housekeeper) Run() {
	h.once.Do(func() { close(h.started) })
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		h.resetTimer(timer)
		select {
		case <-h.stopCh:
			return
		case req := <-h.reqCh:
			h.apply(req)
		case <-timer.C:
			h.fireDue()
		}
	}
}

func (h *Housekeeper) resetTimer(timer *time.Timer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if len(h.pq) == 0 {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(h.pq[0].due)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

func (h *Housekeeper) apply(req request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if req.unreg {
		if e, ok := h.byName[req.name]; ok {
			heap.Remove(&h.pq, e.idx)
			delete(h.byName, req.name)
		}
		return
	}
	if e, ok := h.byName[req.name]; ok {
		e.fn = req.fn
		e.due = req.due
		heap.Fix(&h.pq, e.idx)
		return
	}
	e := &entry{name: req.name, fn: req.fn, due: req.due}
	h.byName[req.name] = e
	heap.Push(&h.pq, e)
}

func (h *Housekeeper) fireDue() {
	now := time.Now()
	var due []*entry
	h.mu.Lock()
	for len(h.pq) > 0 && !h.pq[0].due.After(now) {
		due = append(due, heap.Pop(&h.pq).(*entry))
	}
	for _, e := range due {
		delete(h.byName, e.name)
	}
	h.mu.Unlock()

	for _, e := range due {
		d := e.fn()
		if d == UnregInterval {
			continue
		}
		h.Reg(e.name, e.fn, d)
	}
}

// Stop terminates the housekeeper's Run loop.
func (h *Housekeeper) Stop() { close(h.stopCh) }

// TestInit resets DefaultHK for a fresh test run.
func TestInit() { DefaultHK = New() }
