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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MultiPort is a parsed "-listen"/"-remoteaddr" style address: a host plus
// either a single port (MinPort == MaxPort) or an inclusive port range.
// netbridge.ParseServeAddr only ever uses MinPort, but the range survives
// the parse for any future listener that wants to fan out across it.
type MultiPort struct {
	Host    string
	MinPort uint64
	MaxPort uint64
}

// ParseMultiPort parses "host:port" or "host:portlo-porthi" into a
// MultiPort. Unlike the teacher's regex-driven version this splits on the
// last ':' and an optional '-', which is enough for netbridge's addresses
// (no IPv6 zone/bracket support is needed here, since the bridge only ever
// sees "host:port" strings it constructed or received verbatim from a CLI
// flag).
func ParseMultiPort(addr string) (*MultiPort, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return nil, errors.Errorf("malformed address:%v", addr)
	}
	host, portSpec := addr[:idx], addr[idx+1:]
	if portSpec == "" {
		return nil, errors.Errorf("malformed address:%v", addr)
	}

	lo, hi := portSpec, portSpec
	if dash := strings.IndexByte(portSpec, '-'); dash >= 0 {
		lo, hi = portSpec[:dash], portSpec[dash+1:]
	}

	minPort, err := strconv.ParseUint(lo, 10, 16)
	if err != nil {
		return nil, errors.Errorf("malformed address:%v", addr)
	}
	maxPort, err := strconv.ParseUint(hi, 10, 16)
	if err != nil {
		return nil, errors.Errorf("malformed address:%v", addr)
	}

	if minPort > maxPort || minPort == 0 || maxPort == 0 {
		return nil, errors.Errorf("invalid port range specified: minport:%v -> maxport %v", minPort, maxPort)
	}

	return &MultiPort{Host: host, MinPort: minPort, MaxPort: maxPort}, nil
}
