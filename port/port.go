// Package port implements the port→listener registry (spec.md §4.3): a
// small fixed-size table from port number to a registrant, with listen/close
// as the only mutators. It is generic over the registrant type so that
// socket (which owns the concrete Listener type) can depend on port without
// port needing to depend back on socket.
package port

import (
	"sync"

	"github.com/pkg/errors"
)

// NoPort is the sentinel "no port" value; it is never a valid bindable slot.
const NoPort = 0

// ErrOutOfRange is returned when a port number falls outside [1, MaxPort].
var ErrOutOfRange = errors.New("port: out of range")

// ErrInUse is returned by Bind when the slot is already occupied.
var ErrInUse = errors.New("port: already in use")

// Map is a process-wide port table, indices 1..MaxPort; index 0 is never
// bindable. Registration assigns the slot, close clears it. Lookup is O(1).
type Map[T any] struct {
	mu      sync.Mutex
	maxPort int
	slots   []T // slots[0] unused; index 0 is NoPort
	bound   []bool
}

// NewMap constructs a port map accepting ports in [1, maxPort].
func NewMap[T any](maxPort int) *Map[T] {
	return &Map[T]{
		maxPort: maxPort,
		slots:   make([]T, maxPort+1),
		bound:   make([]bool, maxPort+1),
	}
}

func (m *Map[T]) validLocked(p int) bool {
	return p >= 1 && p <= m.maxPort
}

// InRange reports whether p is a bindable port number.
func (m *Map[T]) InRange(p int) bool {
	return m.validLocked(p)
}

// Bind assigns registrant to port p, failing if p is out of range or
// already bound (spec.md I-3: at most one Listener per port).
func (m *Map[T]) Bind(p int, registrant T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validLocked(p) {
		return ErrOutOfRange
	}
	if m.bound[p] {
		return ErrInUse
	}
	m.slots[p] = registrant
	m.bound[p] = true
	return nil
}

// Lookup returns the registrant bound to port p, if any.
func (m *Map[T]) Lookup(p int) (registrant T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.validLocked(p) || !m.bound[p] {
		var zero T
		return zero, false
	}
	return m.slots[p], true
}

// Clear removes whatever is bound to port p, if anything (idempotent).
func (m *Map[T]) Clear(p int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validLocked(p) {
		var zero T
		m.slots[p] = zero
		m.bound[p] = false
	}
}
