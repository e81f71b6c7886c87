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
	"io"
	"sync"
	"time"
)

const bufSize = 4096

// Copy is a memory-optimized io.Copy, preferring WriteTo/ReadFrom over the
// generic byte-shuffling loop when either side offers it.
func Copy(dst io.Writer, src io.Reader) (written int64, err error) {
	if wt, ok := src.(io.WriterTo); ok {
		return wt.WriteTo(dst)
	}
	if rt, ok := dst.(io.ReaderFrom); ok {
		return rt.ReadFrom(src)
	}

	buf := make([]byte, bufSize)
	return io.CopyBuffer(dst, src, buf)
}

// Pipe bridges two streams bidirectionally. When one direction finishes
// (EOF or error), closeWaitSeconds gives the other direction that long to
// drain any reply already in flight before both streams are force-closed;
// 0 closes immediately. This mirrors the teacher CLI's "closewait" flag
// (see cmd/streamkernelc, cmd/streamkerneld).
func Pipe(alice, bob io.ReadWriteCloser, closeWaitSeconds int) (errA, errB error) {
	var closeOnce sync.Once
	var wg sync.WaitGroup
	wg.Add(2)

	closeBoth := func() {
		closeOnce.Do(func() {
			if closeWaitSeconds > 0 {
				time.AfterFunc(time.Duration(closeWaitSeconds)*time.Second, func() {
					alice.Close()
					bob.Close()
				})
				return
			}
			alice.Close()
			bob.Close()
		})
	}

	streamCopy := func(dst io.Writer, src io.Reader, err *error) {
		_, *err = Copy(dst, src)
		wg.Done()
		closeBoth()
	}

	go streamCopy(alice, bob, &errA)
	go streamCopy(bob, alice, &errB)

	wg.Wait()
	return
}
