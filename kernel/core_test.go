package kernel

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-tinyos/streamkernel/socket"
)

func TestCorePipeRoundtrip(t *testing.T) {
	c := New(32, 8)
	rfid, wfid, err := c.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}

	if _, err := c.Write(wfid, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := c.Read(rfid, buf)
	if err != nil || string(buf[:n]) != "hello" {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}

	if err := c.Close(wfid); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.Read(rfid, buf); err != io.EOF {
		t.Fatalf("expected EOF after writer close, got %v", err)
	}

	snap := c.Stats.Snapshot()
	if snap.PipesCreated != 1 {
		t.Fatalf("expected PipesCreated=1, got %d", snap.PipesCreated)
	}
	if snap.BytesWritten != 5 || snap.BytesRead != 5 {
		t.Fatalf("expected 5 bytes each way, got written=%d read=%d", snap.BytesWritten, snap.BytesRead)
	}
}

func TestCoreSocketConnectAccept(t *testing.T) {
	c := New(32, 8)

	lfid, err := c.Socket(3)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := c.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	cfid, err := c.Socket(0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}

	acceptFid := make(chan int, 1)
	acceptErr := make(chan error, 1)
	go func() {
		fid, err := c.Accept(lfid)
		acceptFid <- fid
		acceptErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := c.Connect(cfid, 3, time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	sfid := <-acceptFid
	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := c.Write(cfid, []byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := c.Read(sfid, buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}

	snap := c.Stats.Snapshot()
	if snap.SocketsCreated < 3 { // listener, client, accepted peer
		t.Fatalf("expected at least 3 sockets created, got %d", snap.SocketsCreated)
	}
}

func TestCoreConnectTimeoutCountsStat(t *testing.T) {
	c := New(32, 8)
	lfid, _ := c.Socket(5)
	if err := c.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	cfid, _ := c.Socket(0)

	err := c.Connect(cfid, 5, 30*time.Millisecond)
	if !errors.Is(err, socket.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if snap := c.Stats.Snapshot(); snap.ConnectsTimedOut != 1 {
		t.Fatalf("expected ConnectsTimedOut=1, got %d", snap.ConnectsTimedOut)
	}
}

func TestCoreCloseUnknownFid(t *testing.T) {
	c := New(4, 4)
	if err := c.Close(99); err == nil {
		t.Fatalf("expected error closing an unreserved fid")
	}
}
