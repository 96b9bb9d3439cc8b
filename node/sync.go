package node

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banyanmesh/core/banyan"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/gossip"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/store"
)

// syncPollInterval is how often the driver checks gossip.Engine for
// candidates whose delay has elapsed.
const syncPollInterval = 20 * time.Millisecond

// syncDriver turns gossip.Engine's priority-ordered pending roots into
// actual careful-sync passes, one in-flight goroutine per remote
// stream, with switch_map semantics (spec §5): a superseding root for
// the same stream cancels whatever sync is already running for it.
type syncDriver struct {
	n *Node

	mu     sync.Mutex
	cancel map[model.StreamId]context.CancelFunc
	grp    *errgroup.Group
}

func newSyncDriver(n *Node) *syncDriver {
	return &syncDriver{n: n, cancel: make(map[model.StreamId]context.CancelFunc)}
}

// run polls gossip.Engine.Due on a ticker and launches a sync task for
// every due candidate, until ctx is cancelled.
func (d *syncDriver) run(ctx context.Context) {
	grp, gctx := errgroup.WithContext(ctx)
	d.mu.Lock()
	d.grp = grp
	d.mu.Unlock()

	t := time.NewTicker(syncPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = grp.Wait()
			return
		case <-t.C:
			for _, due := range d.n.gossipEngine.Due(time.Now()) {
				d.launch(gctx, grp, due)
			}
		}
	}
}

// launch cancels any sync already running for due.Stream (switch_map:
// the newest candidate always wins) and starts a fresh one under its
// own cancellable child context.
func (d *syncDriver) launch(parent context.Context, grp *errgroup.Group, due gossip.DueRoot) {
	taskCtx, cancel := context.WithCancel(parent)

	d.mu.Lock()
	if prior, ok := d.cancel[due.Stream]; ok {
		prior()
	}
	d.cancel[due.Stream] = cancel
	d.mu.Unlock()

	grp.Go(func() error {
		defer cancel()
		err := d.syncOne(taskCtx, due)
		d.mu.Lock()
		if d.cancel[due.Stream] == cancel {
			delete(d.cancel, due.Stream)
		}
		d.mu.Unlock()
		if err != nil && taskCtx.Err() == nil {
			nlog.Warningf("node: sync of stream %s failed: %v", due.Stream, err)
		}
		return nil // a single stream's failure never aborts the group
	})
}

// syncOne performs one careful-sync pass: walk the candidate root
// through fetchingStore (fetching any missing block over bitswap as
// the walk encounters it), then install the validated root.
func (d *syncDriver) syncOne(ctx context.Context, due gossip.DueRoot) error {
	keys, _, err := banyan.WalkFromRoot(ctx, d.n.fetch, due.Cid)
	if err != nil {
		return err
	}
	if err := d.n.store.ApplyReplicatedRoot(due.Stream, due.Cid, int64(len(keys))); err != nil {
		if err == store.ErrTreeRejectedLostEvents {
			nlog.Infof("node: dropped stale root for stream %s (would lose events)", due.Stream)
			return nil
		}
		return err
	}
	if len(keys) > 0 {
		d.n.store.ObserveStreamLamport(due.Stream, keys[len(keys)-1].Lamport)
	}
	return nil
}

// stopAll cancels every in-flight sync task; called from Node.Close.
func (d *syncDriver) stopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.cancel {
		cancel()
	}
}
