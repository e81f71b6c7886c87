// Package pipe implements the byte-oriented pipe core: a fixed-size
// circular buffer shared by one reader endpoint and one writer endpoint,
// coordinated with condition variables rather than channels because both
// ends need to wait on a predicate (space available / data available) that
// can change out from under them between the check and the wait.
package pipe

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Cap is the fixed circular-buffer capacity of every pipe, per spec.md §3.1.
const Cap = 4096

// ErrBrokenPipe is returned by Write when the reader endpoint has gone
// away, distinct from Read's plain io.EOF.
var ErrBrokenPipe = errors.New("pipe: broken pipe (reader gone)")

// ErrClosedPipe is returned by Read/Write when the local endpoint itself
// has already been closed.
var ErrClosedPipe = errors.New("pipe: use of closed pipe endpoint")

// Observer receives byte-count notifications for stats collection. It is
// optional; pipe never blocks on it.
type Observer interface {
	BytesWritten(n int)
	BytesRead(n int)
}

// Pipe is the shared circular buffer. It is always reached through a
// Reader or Writer endpoint, never directly.
type Pipe struct {
	mu       sync.Mutex
	hasSpace *sync.Cond
	hasData  *sync.Cond

	buf    [Cap]byte
	wpos   int
	rpos   int
	avail  int // avail_space
	obs    Observer
	reader bool // reader endpoint present
	writer bool // writer endpoint present
}

func newPipe() *Pipe {
	p := &Pipe{avail: Cap, reader: true, writer: true}
	p.hasSpace = sync.NewCond(&p.mu)
	p.hasData = sync.NewCond(&p.mu)
	return p
}

// New constructs a fresh pipe and returns its two endpoints. Neither
// endpoint is registered in any descriptor table; callers wire that up
// (see kernel.Core.Pipe).
func New(obs Observer) (*Reader, *Writer) {
	p := newPipe()
	p.obs = obs
	return &Reader{p: p}, &Writer{p: p}
}

// writeLocked implements spec.md §4.2's write algorithm. Caller holds p.mu.
func (p *Pipe) writeLocked(buf []byte) (int, error) {
	if !p.writer {
		return 0, ErrClosedPipe
	}

	for p.avail == 0 && p.reader {
		p.hasSpace.Wait()
	}
	if !p.reader {
		return 0, ErrBrokenPipe
	}

	k := len(buf)
	if k > p.avail {
		k = p.avail
	}

	for i := 0; i < k; i++ {
		p.buf[p.wpos] = buf[i]
		p.wpos = (p.wpos + 1) % Cap
	}
	p.avail -= k

	p.hasData.Broadcast()
	return k, nil
}

// readLocked implements spec.md §4.2's read algorithm. Caller holds p.mu.
func (p *Pipe) readLocked(buf []byte) (int, error) {
	if !p.reader {
		return 0, ErrClosedPipe
	}

	have := Cap - p.avail
	for have == 0 {
		if !p.writer {
			return 0, io.EOF
		}
		p.hasData.Wait()
		have = Cap - p.avail
	}

	k := len(buf)
	if k > have {
		k = have
	}

	for i := 0; i < k; i++ {
		buf[i] = p.buf[p.rpos]
		p.rpos = (p.rpos + 1) % Cap
	}
	p.avail += k

	p.hasSpace.Broadcast()
	return k, nil
}

// closeReader implements spec.md §4.2's reader-close rule.
func (p *Pipe) closeReader() {
	p.mu.Lock()
	p.reader = false
	p.hasSpace.Broadcast() // wake writers so they observe the broken pipe
	p.mu.Unlock()
}

// closeWriter implements spec.md §4.2's writer-close rule.
func (p *Pipe) closeWriter() {
	p.mu.Lock()
	p.writer = false
	p.hasData.Broadcast() // wake readers so they observe EOF
	p.mu.Unlock()
}

// Reader is the read-only endpoint of a Pipe. It satisfies fdtable.Stream;
// Write always fails (I-2 asymmetric ops).
type Reader struct{ p *Pipe }

func (r *Reader) Read(buf []byte) (int, error) {
	r.p.mu.Lock()
	n, err := r.p.readLocked(buf)
	r.p.mu.Unlock()
	if err == nil && r.p.obs != nil {
		r.p.obs.BytesRead(n)
	}
	return n, err
}

// Write always fails: the reader endpoint of a pipe is not writable.
func (r *Reader) Write(buf []byte) (int, error) {
	return 0, errors.New("pipe: reader endpoint is not writable")
}

// Close marks the reader endpoint absent. The underlying Pipe is left for
// the garbage collector once both endpoints are gone and no reference
// remains; there is no explicit free step in a garbage-collected runtime.
func (r *Reader) Close() error {
	r.p.closeReader()
	return nil
}

// Writer is the write-only endpoint of a Pipe. Read always fails.
type Writer struct{ p *Pipe }

func (w *Writer) Write(buf []byte) (int, error) {
	w.p.mu.Lock()
	n, err := w.p.writeLocked(buf)
	w.p.mu.Unlock()
	if err == nil && w.p.obs != nil {
		w.p.obs.BytesWritten(n)
	}
	return n, err
}

// Read always fails: the writer endpoint of a pipe is not readable.
func (w *Writer) Read(buf []byte) (int, error) {
	return 0, errors.New("pipe: writer endpoint is not readable")
}

func (w *Writer) Close() error {
	w.p.closeWriter()
	return nil
}
