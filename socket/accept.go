package socket

import (
	"github.com/go-tinyos/streamkernel/fdtable"
	"github.com/go-tinyos/streamkernel/pipe"
)

// Accept implements spec.md §4.4.4: block on req_available until a
// connection request arrives or the listener is closed, then build the two
// cross-linked pipes and admit both sides to KindPeer.
func (r *Registry) Accept(lfid int) (int, error) {
	listener, err := r.scbAt(lfid)
	if err != nil {
		return fdtable.NOFILE, err
	}

	listener.mu.Lock()
	if listener.kind != KindListener || listener.listener == nil {
		listener.mu.Unlock()
		return fdtable.NOFILE, ErrWrongKind
	}
	lp := listener.listener
	listener.refcount++

	for len(lp.queue) == 0 && listener.listener != nil {
		lp.reqAvailable.Wait()
	}
	if listener.listener == nil {
		listener.refcount--
		listener.mu.Unlock()
		return fdtable.NOFILE, ErrListenerClosed
	}

	req := lp.queue[0]
	lp.queue = lp.queue[1:]
	req.inQueue = false
	listener.mu.Unlock()

	peerBFid, err := r.New(req.requesterPort)
	if err != nil {
		listener.mu.Lock()
		listener.refcount--
		listener.mu.Unlock()
		return fdtable.NOFILE, err
	}
	peerB, err := r.scbAt(peerBFid)
	if err != nil {
		listener.mu.Lock()
		listener.refcount--
		listener.mu.Unlock()
		return fdtable.NOFILE, err
	}

	// a->b pipe: requester writes, peerB reads.
	readerAB, writerAB := pipe.New(r.Obs)
	// b->a pipe: peerB writes, requester reads.
	readerBA, writerBA := pipe.New(r.Obs)

	requester := req.requester
	requester.mu.Lock()
	requester.kind = KindPeer
	requester.peer = &peerPayload{other: peerB, writePipe: writerAB, readPipe: readerBA}
	requester.mu.Unlock()

	peerB.mu.Lock()
	peerB.kind = KindPeer
	peerB.peer = &peerPayload{other: requester, writePipe: writerBA, readPipe: readerAB}
	peerB.mu.Unlock()

	req.admitted = true
	close(req.done)

	listener.mu.Lock()
	listener.refcount--
	listener.mu.Unlock()

	return peerBFid, nil
}
