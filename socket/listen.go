package socket

import "sync"

// Listen implements spec.md §4.4.2: Unbound → Listener, claiming the
// socket's port in the shared port map. Binding and the kind transition
// happen under the same lock, so a socket can never be observed as
// "Listener but not yet bound" or vice versa.
func (r *Registry) Listen(fid int) error {
	scb, err := r.scbAt(fid)
	if err != nil {
		return err
	}

	scb.mu.Lock()
	defer scb.mu.Unlock()

	if scb.kind != KindUnbound {
		return ErrWrongKind
	}
	if !r.Ports.InRange(scb.port) {
		return ErrInvalidPort
	}

	if err := r.Ports.Bind(scb.port, scb); err != nil {
		return err
	}

	lp := &listenerPayload{closed: make(chan struct{})}
	lp.reqAvailable = sync.NewCond(&scb.mu)

	scb.kind = KindListener
	scb.listener = lp
	return nil
}
