// Package generic holds the cross-cutting multiplexer abstractions shared
// between the in-kernel socket core and the network bridge. It is adapted
// from the teacher's generic/mux.go, generalized so that a Stream need not
// carry a net.Addr — an in-kernel connection has no remote address, only a
// fid — while a real smux stream still satisfies it by reporting its
// multiplexed stream id as its Label.
package generic

import "io"

// Stream is any bidirectional byte stream that can identify itself for
// logging, whether it's backed by a kernel socket pair or a real network
// connection.
type Stream interface {
	io.ReadWriteCloser
	ID() int
	Label() string
}

// Mux is a connection multiplexer: many Streams fanned out over one
// underlying transport (e.g. many smux streams over one TCP connection, or
// many accepted kernel sockets over one listener port).
type Mux interface {
	Open() (Stream, error)
	Accept() (Stream, error)
	IsClosed() bool
	NumStreams() int
	Close() error
}
