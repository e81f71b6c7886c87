package netbridge

import (
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/go-tinyos/streamkernel/std"
)

// ParseServeAddr resolves a "-listen" style address into the TCP host:port
// Serve should listen on, accepting a single port (the common case) and
// tolerating a range only by using its low end — a deliberately small slice
// of std.ParseMultiPort's range support, enough to exercise it without
// inventing a multi-listener fan-out this module has no use for.
func ParseServeAddr(addr string) (string, error) {
	mp, err := std.ParseMultiPort(addr)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return net.JoinHostPort(mp.Host, strconv.FormatUint(mp.MinPort, 10)), nil
}
