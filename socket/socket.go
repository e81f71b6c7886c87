// Package socket implements the in-kernel stream socket core: a
// tagged-union socket control block (Unbound/Listener/Peer) layered on top
// of package pipe, with a rendezvous-style connect/accept protocol and
// asymmetric half-close. See spec.md §4.4.
package socket

import (
	"errors"
	"sync"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"

	"github.com/go-tinyos/streamkernel/fdtable"
	"github.com/go-tinyos/streamkernel/pipe"
	"github.com/go-tinyos/streamkernel/port"
)

// Kind is the socket's tagged-union discriminant (spec.md I-4: Unbound is
// the only state from which a transition is legal, and it is a one-way
// street to either Listener or Peer).
type Kind int

const (
	KindUnbound Kind = iota
	KindListener
	KindPeer
)

// How selects which half(s) of a Peer to shut down; the bit values match
// spec.md §6's literal {1=READ, 2=WRITE, 3=BOTH} wire contract.
type How int

const (
	ShutdownRead  How = 1
	ShutdownWrite How = 2
	ShutdownBoth  How = ShutdownRead | ShutdownWrite
)

var (
	ErrWrongKind      = pkgerrors.New("socket: operation not valid for this socket kind")
	ErrInvalidPort    = pkgerrors.New("socket: port out of range")
	ErrNoListener     = pkgerrors.New("socket: no listener on that port")
	ErrListenerClosed = pkgerrors.New("socket: listener closed")
	ErrTimeout        = pkgerrors.New("socket: connect timed out")
	ErrNotConnected   = pkgerrors.New("socket: not a connected peer, or that half is shut down")
	ErrAccepted       = pkgerrors.New("socket: no pending connections and listener has no free descriptor")
)

// connRequest is spec.md's ConnectionRequest: allocated by the connector,
// consumed by the acceptor.
type connRequest struct {
	requester     *SCB
	requesterPort int
	done          chan struct{} // closed by Accept on admission
	inQueue       bool          // guarded by the owning listener's mu
	admitted      bool          // set by Accept before it closes done
}

// listenerPayload exists only while kind == KindListener.
type listenerPayload struct {
	queue        []*connRequest
	reqAvailable *sync.Cond // tied to the owning SCB's mu
	closed       chan struct{}
	closeOnce    sync.Once
}

// peerPayload exists only while kind == KindPeer.
type peerPayload struct {
	other     *SCB // weak back-reference; cleared on either side's Close
	readPipe  *pipe.Reader
	writePipe *pipe.Writer
}

// SCB is a Socket Control Block. At most one of listener/peer is non-nil,
// selected by kind (spec.md §9: a closed sum, not an untagged C union).
type SCB struct {
	mu sync.Mutex

	seq      uint64
	refcount int
	kind     Kind
	port     int

	listener *listenerPayload
	peer     *peerPayload

	ports *port.Map[*SCB]
}

// RefCount reports the socket's current reference count (spec.md I-6),
// exposed for tests.
func (s *SCB) RefCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refcount
}

// Port reports the socket's bound (or unbound-but-requested) port.
func (s *SCB) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Kind reports the socket's current tagged-union state.
func (s *SCB) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Read delegates to the Peer's read pipe (spec.md §4.4.5); any other kind,
// or a read-shut-down Peer, fails.
func (s *SCB) Read(buf []byte) (int, error) {
	s.mu.Lock()
	if s.kind != KindPeer || s.peer == nil || s.peer.readPipe == nil {
		s.mu.Unlock()
		return 0, ErrNotConnected
	}
	rp := s.peer.readPipe
	s.mu.Unlock()
	return rp.Read(buf)
}

// Write delegates to the Peer's write pipe (spec.md §4.4.5).
func (s *SCB) Write(buf []byte) (int, error) {
	s.mu.Lock()
	if s.kind != KindPeer || s.peer == nil || s.peer.writePipe == nil {
		s.mu.Unlock()
		return 0, ErrNotConnected
	}
	wp := s.peer.writePipe
	s.mu.Unlock()
	return wp.Write(buf)
}

// Close implements spec.md §4.4.7, kind by kind. It never holds more than
// one SCB's mutex at a time, so no lock-ordering discipline is needed even
// when both peers of a pair close concurrently.
func (s *SCB) Close() error {
	s.mu.Lock()
	switch s.kind {
	case KindPeer:
		p := s.peer
		s.peer = nil
		s.mu.Unlock()
		return closePeerPayload(s, p)
	case KindListener:
		lp := s.listener
		boundPort := s.port
		s.listener = nil
		s.mu.Unlock()
		closeListenerPayload(s, lp, boundPort)
		return nil
	default: // Unbound
		s.mu.Unlock()
		return nil
	}
}

func closePeerPayload(self *SCB, p *peerPayload) error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.readPipe != nil {
		if err := p.readPipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.writePipe != nil {
		if err := p.writePipe.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.other != nil {
		p.other.mu.Lock()
		if p.other.peer != nil && p.other.peer.other == self {
			p.other.peer.other = nil
		}
		p.other.mu.Unlock()
	}

	return errors.Join(errs...)
}

func closeListenerPayload(self *SCB, lp *listenerPayload, boundPort int) {
	if lp == nil {
		return
	}
	lp.closeOnce.Do(func() { close(lp.closed) })
	// Safe without holding self.mu: sync.Cond.Broadcast does not require
	// the caller to hold the associated lock.
	lp.reqAvailable.Broadcast()
	if self.ports != nil {
		self.ports.Clear(boundPort)
	}
}

// Registry bundles the descriptor table and port map that socket
// operations need, and assigns each SCB a monotonic sequence number (stored
// on the SCB and not read by any operation; in particular it plays no part
// in lock ordering — see socket.go's Close for why none is required here).
type Registry struct {
	Files      *fdtable.Table
	Ports      *port.Map[*SCB]
	Obs        pipe.Observer // optional; passed through to every pipe a Peer pair gets
	seqCounter uint64
}

// NewRegistry wires a socket Registry on top of an existing descriptor
// table, with its own port namespace of [1, maxPort]. obs may be nil.
func NewRegistry(files *fdtable.Table, maxPort int, obs pipe.Observer) *Registry {
	return &Registry{Files: files, Ports: port.NewMap[*SCB](maxPort), Obs: obs}
}

// New implements spec.md §4.4.1 (socket(port)): port may be port.NoPort for
// an unbindable client socket (this module's resolution of spec.md §9's
// "socket(NOPORT)" open question: legal, and returns a normal fid, not 0).
func (r *Registry) New(p int) (int, error) {
	if p != port.NoPort && !r.Ports.InRange(p) {
		return fdtable.NOFILE, ErrInvalidPort
	}

	scb := &SCB{
		kind:     KindUnbound,
		port:     p,
		refcount: 1,
		ports:    r.Ports,
		seq:      atomic.AddUint64(&r.seqCounter, 1),
	}

	fids, err := r.Files.Reserve(scb)
	if err != nil {
		return fdtable.NOFILE, err
	}
	return fids[0], nil
}

// scbAt fetches and type-asserts the SCB installed at fid.
func (r *Registry) scbAt(fid int) (*SCB, error) {
	fcb, err := r.Files.Get(fid)
	if err != nil {
		return nil, err
	}
	scb, ok := fcb.Stream.(*SCB)
	if !ok {
		return nil, ErrWrongKind
	}
	return scb, nil
}
