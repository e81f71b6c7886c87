// Package kernel bundles the descriptor table, port map, and socket
// registry into the single system-call surface spec.md §6 names: Pipe,
// Socket, Listen, Accept, Connect, Shutdown, Read, Write, Close. The rest
// of this repository's callers (cmd/*, netbridge) perform every stream
// operation through it; outside kernel they use only constants from
// fdtable and socket (fdtable.NOFILE, socket.ShutdownWrite).
package kernel

import (
	"errors"
	"time"

	"github.com/go-tinyos/streamkernel/fdtable"
	"github.com/go-tinyos/streamkernel/pipe"
	"github.com/go-tinyos/streamkernel/socket"
)

// Core is a single kernel instance: one descriptor table and one port
// namespace. A process embeds exactly one Core (spec.md §3's "per-process"
// framing collapses to "per-Core" here, since this module has no process
// abstraction of its own — see SPEC_FULL.md §4.6).
type Core struct {
	Files   *fdtable.Table
	sockets *socket.Registry
	Stats   Stats
}

// New constructs a Core with room for maxFiles simultaneously open
// descriptors and ports in [1, maxPort].
func New(maxFiles, maxPort int) *Core {
	files := fdtable.NewTable(maxFiles)
	c := &Core{Files: files}
	c.sockets = socket.NewRegistry(files, maxPort, &statsObserver{stats: &c.Stats})
	return c
}

// Pipe implements spec.md §6's pipe(): two fids sharing one pipe.Pipe, the
// first readable, the second writable.
func (c *Core) Pipe() (readFid, writeFid int, err error) {
	r, w := pipe.New(&statsObserver{stats: &c.Stats})
	fids, err := c.Files.Reserve(r, w)
	if err != nil {
		return fdtable.NOFILE, fdtable.NOFILE, err
	}
	c.Stats.PipesCreated.Add(1)
	return fids[0], fids[1], nil
}

// Socket implements spec.md §6's socket(port).
func (c *Core) Socket(p int) (int, error) {
	fid, err := c.sockets.New(p)
	if err != nil {
		return fdtable.NOFILE, err
	}
	c.Stats.SocketsCreated.Add(1)
	return fid, nil
}

// Listen implements spec.md §6's listen(fid).
func (c *Core) Listen(fid int) error {
	return c.sockets.Listen(fid)
}

// Accept implements spec.md §6's accept(fid), returning the new fid for the
// admitted peer.
func (c *Core) Accept(fid int) (int, error) {
	newFid, err := c.sockets.Accept(fid)
	if err != nil {
		if errors.Is(err, socket.ErrListenerClosed) {
			c.Stats.AcceptsRevoked.Add(1)
		}
		return fdtable.NOFILE, err
	}
	c.Stats.SocketsCreated.Add(1)
	return newFid, nil
}

// Connect implements spec.md §6's connect(fid, port, timeout). Unlike
// Accept it never allocates a new fid: on success the caller's own fid
// transitions in place from Unbound to Peer.
func (c *Core) Connect(fid int, port int, timeout time.Duration) error {
	if err := c.sockets.Connect(fid, port, timeout); err != nil {
		if errors.Is(err, socket.ErrTimeout) {
			c.Stats.ConnectsTimedOut.Add(1)
		}
		return err
	}
	return nil
}

// Shutdown implements spec.md §6's shutdown(fid, how).
func (c *Core) Shutdown(fid int, how socket.How) error {
	return c.sockets.Shutdown(fid, how)
}

// Read implements spec.md §6's read(fid, buf), dispatching through the
// Stream-Ops Contract regardless of whether fid names a pipe endpoint or a
// connected socket.
func (c *Core) Read(fid int, buf []byte) (int, error) {
	fcb, err := c.Files.Get(fid)
	if err != nil {
		return 0, err
	}
	return fcb.Stream.Read(buf)
}

// Write implements spec.md §6's write(fid, buf).
func (c *Core) Write(fid int, buf []byte) (int, error) {
	fcb, err := c.Files.Get(fid)
	if err != nil {
		return 0, err
	}
	return fcb.Stream.Write(buf)
}

// Close implements spec.md §6's close(fid): drop this process's reference,
// freeing the descriptor and, once the last reference is gone, destroying
// the underlying stream.
func (c *Core) Close(fid int) error {
	return c.Files.Decref(fid)
}
