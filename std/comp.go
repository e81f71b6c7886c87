// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package std

import (
	"net"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompStream wraps a net.Conn with snappy framing, so netbridge's smux
// session rides a compressed wire instead of the raw TCP socket. It embeds
// net.Conn so LocalAddr/RemoteAddr/SetDeadline and friends pass straight
// through without restating each one; only the byte-stream methods need
// the snappy layer in between.
type CompStream struct {
	net.Conn
	w *snappy.Writer
	r *snappy.Reader
}

// NewCompStream wraps conn for snappy-compressed reads and writes. The
// writer is buffered and flushed after every Write so a netbridge stream
// write maps to exactly one compressed frame on the wire, matching the
// pipe-sized write pattern std.Pipe and std.Copy already use.
func NewCompStream(conn net.Conn) *CompStream {
	return &CompStream{
		Conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (c *CompStream) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *CompStream) Write(p []byte) (int, error) {
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(p), nil
}

func (c *CompStream) Close() error {
	return c.Conn.Close()
}
