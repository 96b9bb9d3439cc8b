package store

import "errors"

// ErrStreamLocked is returned by Append only when the caller asked for
// a non-blocking append and another append on the same stream is
// already in progress; by default Append awaits the lock instead.
var ErrStreamLocked = errors.New("store: stream locked")

// ErrInvalidUpperBounds is returned by BoundedForward/BoundedBackward
// when `to` is not a subset of the locally-present OffsetMap.
var ErrInvalidUpperBounds = errors.New("store: invalid upper bounds")

// ErrOffsetOverflow is returned by Append when a stream's next offset
// would exceed model.MaxOffset.
var ErrOffsetOverflow = errors.New("store: offset ceiling exceeded")

// ErrRetentionOnDefaultStream is the warning-level rejection returned
// when a caller tries to configure retention on the exempt default
// stream (spec §4.1).
var ErrRetentionOnDefaultStream = errors.New("store: default stream is exempt from retention")

// ErrTreeRejectedLostEvents is returned by ApplyReplicatedRoot when the
// incoming root's event count would regress a stream's present offset.
var ErrTreeRejectedLostEvents = errors.New("store: replicated root would lose events")
