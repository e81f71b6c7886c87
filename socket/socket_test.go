package socket

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-tinyos/streamkernel/fdtable"
	"github.com/go-tinyos/streamkernel/port"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	files := fdtable.NewTable(64)
	return NewRegistry(files, 16, nil)
}

func TestConnectAcceptEcho(t *testing.T) {
	r := newRegistry(t)

	lfid, err := r.New(7)
	if err != nil {
		t.Fatalf("New (listener): %v", err)
	}
	if err := r.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	cfid, err := r.New(port.NoPort)
	if err != nil {
		t.Fatalf("New (client): %v", err)
	}

	acceptResult := make(chan int, 1)
	acceptErr := make(chan error, 1)
	go func() {
		fid, err := r.Accept(lfid)
		acceptResult <- fid
		acceptErr <- err
	}()

	time.Sleep(20 * time.Millisecond) // give Accept time to block on req_available

	if err := r.Connect(cfid, 7, time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	serverFid := <-acceptResult
	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if serverFid == fdtable.NOFILE {
		t.Fatalf("Accept returned NOFILE on success")
	}

	clientFcb, _ := r.Files.Get(cfid)
	client := clientFcb.Stream.(*SCB)
	serverFcb, _ := r.Files.Get(serverFid)
	server := serverFcb.Stream.(*SCB)

	if client.Kind() != KindPeer || server.Kind() != KindPeer {
		t.Fatalf("expected both ends to be KindPeer, got client=%v server=%v", client.Kind(), server.Kind())
	}

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := server.Read(buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("server Read: n=%d err=%v", n, err)
	}

	if _, err := server.Write([]byte("pong")); err != nil {
		t.Fatalf("server Write: %v", err)
	}
	n, err = client.Read(buf)
	if err != nil || string(buf[:n]) != "pong" {
		t.Fatalf("client Read: n=%d err=%v", n, err)
	}
}

func TestConnectTimesOutWithNoAccept(t *testing.T) {
	r := newRegistry(t)

	lfid, err := r.New(9)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	cfid, err := r.New(port.NoPort)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := time.Now()
	err = r.Connect(cfid, 9, 50*time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("Connect returned before its timeout elapsed: %v", elapsed)
	}

	listenerFcb, _ := r.Files.Get(lfid)
	listener := listenerFcb.Stream.(*SCB)
	if rc := listener.RefCount(); rc != 1 {
		t.Fatalf("expected listener refcount to settle back to 1, got %d", rc)
	}
}

func TestConnectToUnknownPortFails(t *testing.T) {
	r := newRegistry(t)
	cfid, err := r.New(port.NoPort)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Connect(cfid, 3, time.Second); !errors.Is(err, ErrNoListener) {
		t.Fatalf("expected ErrNoListener, got %v", err)
	}
}

func TestListenerClosedWakesBlockedAccept(t *testing.T) {
	r := newRegistry(t)
	lfid, err := r.New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Accept(lfid)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := r.Files.Decref(lfid); err != nil {
		t.Fatalf("Decref (close listener): %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrListenerClosed) {
			t.Fatalf("expected ErrListenerClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Accept did not wake up after listener close")
	}
}

func TestListenerClosedWakesBlockedConnect(t *testing.T) {
	r := newRegistry(t)
	lfid, err := r.New(5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	cfid, err := r.New(port.NoPort)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Connect(cfid, 5, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := r.Files.Decref(lfid); err != nil {
		t.Fatalf("Decref: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrListenerClosed) {
			t.Fatalf("expected ErrListenerClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Connect did not wake up after listener close")
	}
}

func TestListenRejectsNonUnbound(t *testing.T) {
	r := newRegistry(t)
	fid, err := r.New(6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Listen(fid); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := r.Listen(fid); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind on double Listen, got %v", err)
	}
}

func TestListenRejectsDuplicatePort(t *testing.T) {
	r := newRegistry(t)
	a, _ := r.New(6)
	b, _ := r.New(6)
	if err := r.Listen(a); err != nil {
		t.Fatalf("Listen a: %v", err)
	}
	if err := r.Listen(b); !errors.Is(err, port.ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
}

func TestShutdownIsAsymmetricHalfClose(t *testing.T) {
	r := newRegistry(t)
	lfid, _ := r.New(8)
	if err := r.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	cfid, _ := r.New(port.NoPort)

	acceptDone := make(chan int, 1)
	go func() {
		fid, _ := r.Accept(lfid)
		acceptDone <- fid
	}()
	time.Sleep(20 * time.Millisecond)
	if err := r.Connect(cfid, 8, time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sfid := <-acceptDone

	cFcb, _ := r.Files.Get(cfid)
	client := cFcb.Stream.(*SCB)
	sFcb, _ := r.Files.Get(sfid)
	server := sFcb.Stream.(*SCB)

	if err := r.Shutdown(cfid, ShutdownWrite); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// Client can no longer write...
	if _, err := client.Write([]byte("x")); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected after write-shutdown, got %v", err)
	}
	// ...but the server, whose write half is untouched, can still write to
	// the client, which can still read (only write was shut down locally).
	if _, err := server.Write([]byte("reply")); err != nil {
		t.Fatalf("server Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	if err != nil || string(buf[:n]) != "reply" {
		t.Fatalf("client Read after own write-shutdown: n=%d err=%v", n, err)
	}
	// And the server observes EOF on its read half, since the client's
	// write pipe endpoint was actually closed.
	n, err = server.Read(buf)
	if err != io.EOF || n != 0 {
		t.Fatalf("expected EOF on server's read side, got n=%d err=%v", n, err)
	}
}

func TestClosePeerClearsBackReference(t *testing.T) {
	r := newRegistry(t)
	lfid, _ := r.New(10)
	if err := r.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	cfid, _ := r.New(port.NoPort)

	acceptDone := make(chan int, 1)
	go func() {
		fid, _ := r.Accept(lfid)
		acceptDone <- fid
	}()
	time.Sleep(20 * time.Millisecond)
	if err := r.Connect(cfid, 10, time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sfid := <-acceptDone

	if err := r.Files.Decref(cfid); err != nil {
		t.Fatalf("Decref client: %v", err)
	}

	sFcb, _ := r.Files.Get(sfid)
	server := sFcb.Stream.(*SCB)
	server.mu.Lock()
	other := server.peer.other
	server.mu.Unlock()
	if other != nil {
		t.Fatalf("expected server's back-reference to the closed client to be cleared")
	}
	buf := make([]byte, 1)
	if _, err := server.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF on server after client closed, got %v", err)
	}
}
