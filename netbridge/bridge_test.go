package netbridge

import (
	"net"
	"testing"
	"time"

	"github.com/go-tinyos/streamkernel/kernel"
)

func TestServeDialEchoRoundTrip(t *testing.T) {
	serverCore := kernel.New(64, 16)
	clientCore := kernel.New(64, 16)

	echoFid, err := serverCore.Socket(9)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := serverCore.Listen(echoFid); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			peerFid, err := serverCore.Accept(echoFid)
			if err != nil {
				return
			}
			go func(fid int) {
				buf := make([]byte, 64)
				for {
					n, err := serverCore.Read(fid, buf)
					if n > 0 {
						if _, werr := serverCore.Write(fid, buf[:n]); werr != nil {
							return
						}
					}
					if err != nil {
						return
					}
				}
			}(peerFid)
		}
	}()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	psk := []byte("correct horse battery staple")

	serveBridge, err := Serve(serverCore, 9, ln, psk, false, 0, true)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer serveBridge.Close()

	dialBridge, err := Dial(clientCore, 4, ln.Addr().String(), psk, false, 0, true)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialBridge.Close()

	time.Sleep(50 * time.Millisecond) // let the bridge handshake settle

	localCfid, err := clientCore.Socket(0)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := clientCore.Connect(localCfid, 4, 2*time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := clientCore.Write(localCfid, []byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := clientCore.Read(localCfid, buf)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("expected echoed ping through the bridge, got n=%d err=%v buf=%q", n, err, buf[:n])
	}
}

func TestServeRejectsWrongPSK(t *testing.T) {
	serverCore := kernel.New(64, 16)
	lfid, _ := serverCore.Socket(3)
	if err := serverCore.Listen(lfid); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	serveBridge, err := Serve(serverCore, 3, ln, []byte("right-key"), false, 0, true)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer serveBridge.Close()

	clientCore := kernel.New(64, 16)
	dialBridge, err := Dial(clientCore, 7, ln.Addr().String(), []byte("wrong-key"), false, 0, true)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialBridge.Close()

	time.Sleep(50 * time.Millisecond)

	cfid, _ := clientCore.Socket(0)
	err = clientCore.Connect(cfid, 7, 300*time.Millisecond)
	if err == nil {
		t.Fatalf("expected Connect to fail: the server should have dropped the mismatched-PSK connection before smux ever came up")
	}
}
