package main

import "github.com/go-tinyos/streamkernel/kernel"

// coreReader/coreWriter adapt one fid of a kernel.Core to io.Reader/io.Writer
// so the in-kernel connection can sit on either end of io.Copy next to
// os.Stdin/os.Stdout, mirroring how the teacher's client pipes a dialed
// net.Conn straight into the smux stream without an intermediate buffer.
type coreReader struct {
	core *kernel.Core
	fid  int
}

func (r *coreReader) Read(p []byte) (int, error) { return r.core.Read(r.fid, p) }

type coreWriter struct {
	core *kernel.Core
	fid  int
}

func (w *coreWriter) Write(p []byte) (int, error) { return w.core.Write(w.fid, p) }
