// Package netbridge exposes one in-kernel listener port to a real TCP peer.
// It multiplexes arbitrarily many accepted kernel-socket connections over a
// single smux session riding one TCP connection — the same shape as the
// teacher's server/main.go terminating one KCP/smux session and fanning
// each smux stream out to a dialed TCP target, except the "dialed target"
// here is an in-process kernel.Core connection rather than another TCP dial.
//
// This package is a collaborator, not part of the kernel core: it consumes
// kernel.Core's public Socket/Listen/Accept/Connect/Read/Write/Close
// surface exactly like any other user process would, so it does not
// conflict with the core's "no network stack" non-goal.
package netbridge

import (
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/xtaci/smux"
	"golang.org/x/crypto/pbkdf2"

	"github.com/go-tinyos/streamkernel/fdtable"
	"github.com/go-tinyos/streamkernel/generic"
	"github.com/go-tinyos/streamkernel/kernel"
	"github.com/go-tinyos/streamkernel/std"
)

// tokenSalt replaces the teacher's SALT = "kcp-go"; same pbkdf2.Key shape,
// renamed since this isn't a KCP-derived handshake.
const tokenSalt = "streamkernel"

const tokenLen = 32

// minPSKLength below this, netbridge warns (not refuses) like the teacher's
// QPP key-length warnings in client/main.go and server/main.go.
const minPSKLength = 8

// deriveToken turns a pre-shared key into a fixed-length handshake token,
// grounded on both of the teacher's main.go files:
// pbkdf2.Key([]byte(config.Key), []byte(SALT), 4096, 32, sha1.New).
func deriveToken(psk []byte) []byte {
	return pbkdf2.Key(psk, []byte(tokenSalt), 4096, tokenLen, sha1.New)
}

func warnIfWeakPSK(psk []byte) {
	if len(psk) < minPSKLength {
		color.Red("netbridge: psk is only %d bytes, recommend at least %d", len(psk), minPSKLength)
	}
}

// Bridge is a running server or client side of the bridge. Close tears down
// every session it owns.
type Bridge struct {
	core      *kernel.Core
	closeWait int  // seconds to linger after either side of a bridged pair closes
	quiet     bool // suppress per-stream open/closed log lines

	mu       sync.Mutex
	closed   bool
	listener net.Listener    // server-side only
	sessions []*smux.Session // server-side: one per accepted TCP conn
	session  *smux.Session   // client-side: the single dialed session
	lfid     int             // client-side: the local listener fid
}

// Close stops accepting/dialing and closes every smux session this bridge
// owns. Safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.listener != nil {
		if e := b.listener.Close(); e != nil {
			err = e
		}
	}
	for _, s := range b.sessions {
		s.Close()
	}
	if b.session != nil {
		b.session.Close()
	}
	if b.lfid != fdtable.NOFILE {
		b.core.Close(b.lfid)
	}
	return err
}

func (b *Bridge) addSession(s *smux.Session) {
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
}

func buildConfig() (*smux.Config, error) {
	d := smux.DefaultConfig()
	return std.BuildSmuxConfig(d.Version, d.MaxReceiveBuffer, d.MaxStreamBuffer, d.MaxFrameSize, int(d.KeepAliveInterval/time.Second))
}

// kernelConn adapts a kernel.Core fid to io.ReadWriteCloser (and
// generic.Stream), so it can be handed to std.Pipe next to a real smux
// stream.
type kernelConn struct {
	core *kernel.Core
	fid  int
}

func (k *kernelConn) Read(p []byte) (int, error)  { return k.core.Read(k.fid, p) }
func (k *kernelConn) Write(p []byte) (int, error) { return k.core.Write(k.fid, p) }
func (k *kernelConn) Close() error                { return k.core.Close(k.fid) }
func (k *kernelConn) ID() int                     { return k.fid }
func (k *kernelConn) Label() string               { return fmt.Sprintf("kernel:fid=%d", k.fid) }

var _ generic.Stream = (*kernelConn)(nil)

// smuxStreamAdapter adapts a *smux.Stream to generic.Stream, giving it the
// same Label()/ID() shape as kernelConn so bridgeToKernel/relayToRemote can
// log both ends of a bridged pair uniformly regardless of which side of
// the tunnel they sit on.
type smuxStreamAdapter struct {
	*smux.Stream
}

func (s smuxStreamAdapter) ID() int       { return int(s.Stream.ID()) }
func (s smuxStreamAdapter) Label() string { return fmt.Sprintf("smux:stream=%d", s.Stream.ID()) }

var _ generic.Stream = smuxStreamAdapter{}

// logBridgeLifetime mirrors the teacher's handleClient "stream
// opened"/"stream closed" logln pair, logging the identity of both
// bridged endpoints. Returns a closer to defer at the call site.
func logBridgeLifetime(quiet bool, a, b generic.Stream) func() {
	if quiet {
		return func() {}
	}
	log.Println("stream opened", "in:", a.Label(), "out:", b.Label())
	return func() {
		log.Println("stream closed", "in:", a.Label(), "out:", b.Label())
	}
}

// Serve accepts TCP connections on ln; each one becomes a smux.Server
// session, and every smux stream the remote side opens is connected to
// targetPort on core and bridged with std.Pipe. Mirrors the teacher's
// server/main.go handleMux/handleClient loop. closeWait mirrors the
// teacher's -closewait flag: seconds to linger after one side closes
// before tearing down the other, 0 for an immediate close.
func Serve(core *kernel.Core, targetPort int, ln net.Listener, psk []byte, compress bool, closeWait int, quiet bool) (*Bridge, error) {
	warnIfWeakPSK(psk)
	token := deriveToken(psk)

	b := &Bridge{core: core, closeWait: closeWait, quiet: quiet, listener: ln, lfid: fdtable.NOFILE}
	go b.acceptLoop(targetPort, token, compress)
	return b, nil
}

func (b *Bridge) acceptLoop(targetPort int, token []byte, compress bool) {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.handleConn(conn, targetPort, token, compress)
	}
}

func (b *Bridge) handleConn(conn net.Conn, targetPort int, token []byte, compress bool) {
	peerToken := make([]byte, len(token))
	if _, err := io.ReadFull(conn, peerToken); err != nil {
		conn.Close()
		return
	}
	if !hmac.Equal(peerToken, token) {
		conn.Close()
		return
	}

	var rw io.ReadWriteCloser = conn
	if compress {
		rw = std.NewCompStream(conn)
	}

	cfg, err := buildConfig()
	if err != nil {
		conn.Close()
		return
	}
	session, err := smux.Server(rw, cfg)
	if err != nil {
		conn.Close()
		return
	}
	b.addSession(session)

	for {
		stream, err := session.AcceptStream()
		if err != nil {
			session.Close()
			return
		}
		go b.bridgeToKernel(stream, targetPort)
	}
}

func (b *Bridge) bridgeToKernel(stream *smux.Stream, targetPort int) {
	fid, err := b.core.Socket(0)
	if err != nil {
		stream.Close()
		return
	}
	if err := b.core.Connect(fid, targetPort, 5*time.Second); err != nil {
		b.core.Close(fid)
		stream.Close()
		return
	}
	kc := &kernelConn{core: b.core, fid: fid}
	done := logBridgeLifetime(b.quiet, smuxStreamAdapter{stream}, kc)
	defer done()
	std.Pipe(stream, kc, b.closeWait)
}

// Dial opens raddr, authenticates with psk, and opens one smux stream per
// connection accepted on localPort. Mirrors the teacher's client/main.go
// createConn/handleClient loop, but the thing being fanned out to is a
// kernel.Core listener, not another TCP dial.
func Dial(core *kernel.Core, localPort int, raddr string, psk []byte, compress bool, closeWait int, quiet bool) (*Bridge, error) {
	warnIfWeakPSK(psk)
	token := deriveToken(psk)

	conn, err := net.Dial("tcp", raddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := conn.Write(token); err != nil {
		conn.Close()
		return nil, errors.WithStack(err)
	}

	var rw io.ReadWriteCloser = conn
	if compress {
		rw = std.NewCompStream(conn)
	}

	cfg, err := buildConfig()
	if err != nil {
		conn.Close()
		return nil, err
	}
	session, err := smux.Client(rw, cfg)
	if err != nil {
		conn.Close()
		return nil, errors.WithStack(err)
	}

	lfid, err := core.Socket(localPort)
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := core.Listen(lfid); err != nil {
		session.Close()
		return nil, err
	}

	b := &Bridge{core: core, closeWait: closeWait, quiet: quiet, session: session, lfid: lfid}
	go b.dialLoop(lfid)
	return b, nil
}

func (b *Bridge) dialLoop(lfid int) {
	for {
		fid, err := b.core.Accept(lfid)
		if err != nil {
			return
		}
		go b.relayToRemote(fid)
	}
}

func (b *Bridge) relayToRemote(fid int) {
	stream, err := b.session.OpenStream()
	if err != nil {
		b.core.Close(fid)
		return
	}
	kc := &kernelConn{core: b.core, fid: fid}
	done := logBridgeLifetime(b.quiet, kc, smuxStreamAdapter{stream})
	defer done()
	std.Pipe(stream, kc, b.closeWait)
}
