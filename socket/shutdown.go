package socket

import (
	"errors"

	"github.com/go-tinyos/streamkernel/pipe"
)

// Shutdown implements spec.md §4.4.6: asymmetric half-close of a Peer. Only
// the named half's pipe endpoint is closed; the other half, if still open,
// continues to work. Shutting down both halves of both peers is equivalent
// to Close, but Shutdown never transitions kind or releases the fid.
func (r *Registry) Shutdown(fid int, how How) error {
	scb, err := r.scbAt(fid)
	if err != nil {
		return err
	}

	scb.mu.Lock()
	if scb.kind != KindPeer || scb.peer == nil {
		scb.mu.Unlock()
		return ErrWrongKind
	}

	var readPipe *pipe.Reader
	var writePipe *pipe.Writer
	if how&ShutdownRead != 0 {
		readPipe = scb.peer.readPipe
		scb.peer.readPipe = nil
	}
	if how&ShutdownWrite != 0 {
		writePipe = scb.peer.writePipe
		scb.peer.writePipe = nil
	}
	scb.mu.Unlock()

	var errs []error
	if readPipe != nil {
		if err := readPipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if writePipe != nil {
		if err := writePipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
