// Package fdtable implements the file-descriptor / stream-operations
// abstraction that the rest of the kernel dispatches through: every open
// stream (pipe endpoint, socket) is reached by an integer fid that indexes
// into a Table slot holding an FCB.
package fdtable

import (
	"sync"

	"github.com/pkg/errors"
)

// NOFILE is returned in place of a fid whenever a call fails.
const NOFILE = -1

// ErrNoFile is returned by Reserve when the table has no free slots.
var ErrNoFile = errors.New("fdtable: no free descriptor slots")

// ErrBadFid is returned by Get/Incref/Decref for an out-of-range or
// never-reserved fid.
var ErrBadFid = errors.New("fdtable: invalid fid")

// Stream is the Stream-Ops Contract: every pipe endpoint and socket
// satisfies it. Read returns io.EOF (not a bare nil error with n==0) when
// the producer side has gone away and the buffer is drained; Write and
// Close return a distinguished error on failure. A "rejecting" endpoint
// (e.g. a pipe's reader endpoint) is simply a type whose Write always
// returns an error — no vtable swap is needed.
type Stream interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// FCB is a File Control Block: a stream object paired with its own
// refcount. The owning Table calls Stream.Close exactly once, when the
// refcount reaches zero.
type FCB struct {
	mu       sync.Mutex
	refcount int
	Stream   Stream
}

func (f *FCB) incref() {
	f.mu.Lock()
	f.refcount++
	f.mu.Unlock()
}

// decref returns true if this call dropped the refcount to zero.
func (f *FCB) decref() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refcount--
	return f.refcount == 0
}

// Table is a fixed-size table of descriptor slots, analogous to a process's
// open-file table. It is safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	slots []*FCB
	free  []int
}

// NewTable allocates a table with room for size simultaneously open fids.
func NewTable(size int) *Table {
	t := &Table{slots: make([]*FCB, size)}
	t.free = make([]int, size)
	for i := range t.free {
		t.free[i] = size - 1 - i // pop from the tail, hand out low fids first
	}
	return t
}

// Reserve atomically allocates n fresh fids, each carrying a fresh FCB with
// refcount 1 and the given stream installed. On failure no slot is
// consumed (resource exhaustion is rolled back per spec.md §7).
func (t *Table) Reserve(streams ...Stream) (fids []int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) < len(streams) {
		return nil, ErrNoFile
	}

	fids = make([]int, len(streams))
	for i, s := range streams {
		fid := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.slots[fid] = &FCB{refcount: 1, Stream: s}
		fids[i] = fid
	}
	return fids, nil
}

// Get returns the FCB installed at fid, if any.
func (t *Table) Get(fid int) (*FCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fid < 0 || fid >= len(t.slots) || t.slots[fid] == nil {
		return nil, ErrBadFid
	}
	return t.slots[fid], nil
}

// Incref bumps the refcount of the FCB at fid, so that one more Decref is
// needed before the stream is closed.
func (t *Table) Incref(fid int) error {
	fcb, err := t.Get(fid)
	if err != nil {
		return err
	}
	fcb.incref()
	return nil
}

// Decref drops the refcount of the FCB at fid. When it reaches zero the
// slot is freed and the stream's Close is invoked — the stream is
// considered destroyed even if Close returns an error, per spec.md §4.1.
func (t *Table) Decref(fid int) error {
	fcb, err := t.Get(fid)
	if err != nil {
		return err
	}

	if !fcb.decref() {
		return nil
	}

	t.mu.Lock()
	t.slots[fid] = nil
	t.free = append(t.free, fid)
	t.mu.Unlock()

	return fcb.Stream.Close()
}
