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
	"time"

	"github.com/xtaci/smux"
)

// smuxSessionParams names the knobs netbridge.buildConfig pulls from
// smux.DefaultConfig() before handing them here. The call site at
// netbridge/bridge.go passes them as five positional ints; BuildSmuxConfig
// gathers them into this struct so each value is named before it is
// assigned onto smux.Config.
type smuxSessionParams struct {
	Version           int
	MaxReceiveBuffer  int
	MaxStreamBuffer   int
	MaxFrameSize      int
	KeepAliveInterval time.Duration
}

// BuildSmuxConfig turns the session parameters a bridge negotiates (or
// inherits from smux.DefaultConfig) into a verified smux.Config, so a
// malformed bridge configuration fails at startup rather than surfacing as
// a mysterious stream error later.
func BuildSmuxConfig(version, maxReceiveBuffer, maxStreamBuffer, maxFrameSize, keepAliveSeconds int) (*smux.Config, error) {
	p := smuxSessionParams{
		Version:           version,
		MaxReceiveBuffer:  maxReceiveBuffer,
		MaxStreamBuffer:   maxStreamBuffer,
		MaxFrameSize:      maxFrameSize,
		KeepAliveInterval: time.Duration(keepAliveSeconds) * time.Second,
	}

	cfg := smux.DefaultConfig()
	cfg.Version = p.Version
	cfg.MaxReceiveBuffer = p.MaxReceiveBuffer
	cfg.MaxStreamBuffer = p.MaxStreamBuffer
	cfg.MaxFrameSize = p.MaxFrameSize
	cfg.KeepAliveInterval = p.KeepAliveInterval

	if err := smux.VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
