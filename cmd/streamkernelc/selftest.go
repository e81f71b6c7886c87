package main

import (
	"fmt"
	"log"
	"time"

	"github.com/go-tinyos/streamkernel/kernel"
)

// runSelftest exercises a local kernel.Core end to end with no network
// involved: a pipe round-trip and a connect/accept/echo pair over an
// in-kernel socket. It exists so streamkernelc can be smoke-tested on a box
// with no streamkerneld reachable.
func runSelftest(core *kernel.Core) error {
	rfid, wfid, err := core.Pipe()
	if err != nil {
		return fmt.Errorf("pipe: %w", err)
	}
	if _, err := core.Write(wfid, []byte("pipe-ok")); err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}
	buf := make([]byte, 16)
	n, err := core.Read(rfid, buf)
	if err != nil || string(buf[:n]) != "pipe-ok" {
		return fmt.Errorf("pipe read: got %q, err %v", buf[:n], err)
	}
	core.Close(rfid)
	core.Close(wfid)
	log.Println("selftest: pipe roundtrip ok")

	const port = 5
	lfid, err := core.Socket(port)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := core.Listen(lfid); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	accepted := make(chan int, 1)
	acceptErr := make(chan error, 1)
	go func() {
		fid, err := core.Accept(lfid)
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- fid
	}()

	cfid, err := core.Socket(0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := core.Connect(cfid, port, 2*time.Second); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	var sfid int
	select {
	case sfid = <-accepted:
	case err := <-acceptErr:
		return fmt.Errorf("accept: %w", err)
	case <-time.After(2 * time.Second):
		return fmt.Errorf("accept: timed out")
	}

	if _, err := core.Write(cfid, []byte("socket-ok")); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	n, err = core.Read(sfid, buf)
	if err != nil || string(buf[:n]) != "socket-ok" {
		return fmt.Errorf("socket read: got %q, err %v", buf[:n], err)
	}
	core.Close(cfid)
	core.Close(sfid)
	core.Close(lfid)
	log.Println("selftest: connect/accept echo ok")

	stats := core.Stats.Snapshot()
	log.Printf("selftest: stats %+v\n", stats)
	return nil
}
