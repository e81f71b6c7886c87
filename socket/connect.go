package socket

import "time"

// removeRequest drops req from lp's queue if it is still there. Called with
// the listener's mu held. A no-op if Accept already dequeued it.
func removeRequest(lp *listenerPayload, req *connRequest) {
	for i, candidate := range lp.queue {
		if candidate == req {
			lp.queue = append(lp.queue[:i], lp.queue[i+1:]...)
			req.inQueue = false
			return
		}
	}
}

// Connect implements spec.md §4.4.3: enqueue a connection request on the
// target port's listener, then wait for admission, listener closure, or
// timeout — whichever comes first.
//
// The wait itself uses a channel plus select/time.After rather than
// sync.Cond, because this is the one wait in the kernel with a deadline;
// the same idiom smux uses for AcceptStream's and writeFrameInternal's
// deadline-bound waits.
func (r *Registry) Connect(fid int, targetPort int, timeout time.Duration) error {
	scb, err := r.scbAt(fid)
	if err != nil {
		return err
	}

	scb.mu.Lock()
	if scb.kind != KindUnbound {
		scb.mu.Unlock()
		return ErrWrongKind
	}
	requesterPort := scb.port
	scb.mu.Unlock()

	if !r.Ports.InRange(targetPort) {
		return ErrInvalidPort
	}
	listener, ok := r.Ports.Lookup(targetPort)
	if !ok {
		return ErrNoListener
	}

	listener.mu.Lock()
	if listener.kind != KindListener || listener.listener == nil {
		listener.mu.Unlock()
		return ErrNoListener
	}
	lp := listener.listener
	req := &connRequest{requester: scb, requesterPort: requesterPort, done: make(chan struct{}), inQueue: true}
	lp.queue = append(lp.queue, req)
	listener.refcount++
	closedCh := lp.closed
	lp.reqAvailable.Signal()
	listener.mu.Unlock()

	var waitErr error
	select {
	case <-req.done:
		waitErr = nil
	case <-closedCh:
		waitErr = ErrListenerClosed
	case <-time.After(timeout):
		listener.mu.Lock()
		if req.inQueue {
			removeRequest(lp, req)
		}
		listener.mu.Unlock()

		select {
		case <-req.done:
			// Accept won the race in the window between the timer firing
			// and us acquiring listener.mu; honor the admission.
			waitErr = nil
		default:
			waitErr = ErrTimeout
		}
	}

	listener.mu.Lock()
	listener.refcount--
	listener.mu.Unlock()

	return waitErr
}
