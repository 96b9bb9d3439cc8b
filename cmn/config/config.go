// Package config holds the mesh's read-mostly runtime configuration:
// Banyan tree sizing, retention cadence, cache bounds, and janitor/gossip
// intervals. A single atomically-swappable snapshot is read by every
// package that needs a tunable, mirroring the teacher's cmn/rom.go
// "read-mostly" pattern generalized from HTTP/cluster timeouts to this
// system's tunables.
/*
 * Adapted from the aistore cmn/rom.go package.
 */
package config

import (
	"sync/atomic"
	"time"
)

// Banyan holds the Banyan-tree packing thresholds (spec §3).
type Banyan struct {
	MaxKeyBranches int   // children per sealed branch
	MaxLeafCount   int   // keys per sealed leaf, default 16384
	TargetLeafSize int64 // target payload bytes per sealed leaf, default 1MiB
	MaxLevel       int   // pack trigger, default 512
}

// Cache holds resource-policy bounds (spec §5).
type Cache struct {
	BlockCacheCount int   // default 128 Ki blocks
	BlockCacheBytes int64 // default 1 GiB
	BranchCacheBytes int64
}

// Intervals holds the cadences of every periodic job in the system.
type Intervals struct {
	RetentionPrune time.Duration // default 30 min
	RootMapCadence time.Duration // default 10 s
	DiscoveryGossip time.Duration // default 30 s
	JanitorPeriod  time.Duration // default 30 s
	BlockStoreGC   time.Duration // default 5 min
	GCTargetDur    time.Duration // bound on a single GC pass
}

// Gossip holds fast/slow path publish policy (spec §4.2).
type Gossip struct {
	FastPathEnabled bool
	SlowPathEnabled bool
	SlowPathDelay   time.Duration // default 100ms, lets FastPath overtake
}

// Bitswap holds block-wants timeouts (spec §4.4).
type Bitswap struct {
	MaxSendDuration time.Duration // default 30s
	ResendDuration  time.Duration // default 120s
}

// Discovery holds peer-discovery GC policy (spec §4.3).
type Discovery struct {
	PruneAddressAfter time.Duration // default 3 days, non-bootstrap only
}

type Config struct {
	Banyan    Banyan
	Cache     Cache
	Intervals Intervals
	Gossip    Gossip
	Bitswap   Bitswap
	Discovery Discovery
}

func Default() *Config {
	return &Config{
		Banyan: Banyan{
			MaxKeyBranches: 32,
			MaxLeafCount:   16384,
			TargetLeafSize: 1 << 20,
			MaxLevel:       512,
		},
		Cache: Cache{
			BlockCacheCount:  128 * 1024,
			BlockCacheBytes:  1 << 30,
			BranchCacheBytes: 256 << 20,
		},
		Intervals: Intervals{
			RetentionPrune:  30 * time.Minute,
			RootMapCadence:  10 * time.Second,
			DiscoveryGossip: 30 * time.Second,
			JanitorPeriod:   30 * time.Second,
			BlockStoreGC:    5 * time.Minute,
			GCTargetDur:     2 * time.Second,
		},
		Gossip: Gossip{
			FastPathEnabled: true,
			SlowPathEnabled: true,
			SlowPathDelay:   100 * time.Millisecond,
		},
		Bitswap: Bitswap{
			MaxSendDuration: 30 * time.Second,
			ResendDuration:  120 * time.Second,
		},
		Discovery: Discovery{
			PruneAddressAfter: 3 * 24 * time.Hour,
		},
	}
}

// global holds the current snapshot, swapped atomically on reload.
var global atomic.Pointer[Config]

func init() { global.Store(Default()) }

// Get returns the current read-mostly config snapshot. Safe to call
// concurrently; callers must not mutate the returned value.
func Get() *Config { return global.Load() }

// Set installs a new config snapshot, replacing the old one atomically.
func Set(c *Config) { global.Store(c) }
