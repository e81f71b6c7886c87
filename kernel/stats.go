package kernel

import "sync/atomic"

// Stats is a set of free-running counters, generalized from the teacher's
// fixed kcp.Snmp struct to the handful of events this kernel core actually
// produces. std.StatsLogger takes a snapshot function returning one of
// these and renders it as a CSV row.
type Stats struct {
	PipesCreated     atomic.Int64
	SocketsCreated   atomic.Int64
	BytesRead        atomic.Int64
	BytesWritten     atomic.Int64
	ConnectsTimedOut atomic.Int64
	AcceptsRevoked   atomic.Int64
}

// Snapshot is a plain-value copy of Stats, safe to hand to a CSV encoder
// (atomic.Int64 itself is not meant to be copied once in use).
type Snapshot struct {
	PipesCreated     int64
	SocketsCreated   int64
	BytesRead        int64
	BytesWritten     int64
	ConnectsTimedOut int64
	AcceptsRevoked   int64
}

// Snapshot reads all counters into a plain struct.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PipesCreated:     s.PipesCreated.Load(),
		SocketsCreated:   s.SocketsCreated.Load(),
		BytesRead:        s.BytesRead.Load(),
		BytesWritten:     s.BytesWritten.Load(),
		ConnectsTimedOut: s.ConnectsTimedOut.Load(),
		AcceptsRevoked:   s.AcceptsRevoked.Load(),
	}
}

// statsObserver adapts Stats to pipe.Observer, so pipe internals stay
// unaware that a kernel.Core exists (collaborator-agnostic, per SPEC_FULL.md
// §4.6).
type statsObserver struct {
	stats *Stats
}

func (o *statsObserver) BytesWritten(n int) {
	o.stats.BytesWritten.Add(int64(n))
}

func (o *statsObserver) BytesRead(n int) {
	o.stats.BytesRead.Add(int64(n))
}
