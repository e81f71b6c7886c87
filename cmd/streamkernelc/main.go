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

// streamkernelc either runs a self-contained sanity pass over a local
// kernel.Core (-selftest, no network involved) or dials a streamkerneld's
// netbridge and pipes stdin/stdout through the in-kernel port it exposes,
// the same role the teacher's client plays piping a local TCP/unix dial
// through its KCP tunnel.
package main

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/go-tinyos/streamkernel/kernel"
	"github.com/go-tinyos/streamkernel/netbridge"
	"github.com/go-tinyos/streamkernel/socket"
)

// VERSION is injected by buildflags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "streamkernelc"
	myApp.Usage = "teaching-kernel stream I/O client"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "localport,l",
			Value: 4,
			Usage: "in-kernel port this process binds to relay through the bridge",
		},
		cli.StringFlag{
			Name:  "remoteaddr,r",
			Value: "127.0.0.1:29900",
			Usage: "streamkerneld's netbridge address",
		},
		cli.StringFlag{
			Name:   "key",
			Value:  "it's a secrect",
			Usage:  "pre-shared secret between streamkerneld and streamkernelc",
			EnvVar: "STREAMKERNEL_KEY",
		},
		cli.BoolFlag{
			Name:  "nocomp",
			Usage: "disable snappy compression on the bridge's TCP transport",
		},
		cli.IntFlag{
			Name:  "maxfiles",
			Value: 256,
			Usage: "size of the descriptor table",
		},
		cli.IntFlag{
			Name:  "maxport",
			Value: 1024,
			Usage: "highest bindable in-kernel port",
		},
		cli.IntFlag{
			Name:  "closewait",
			Value: 0,
			Usage: "seconds to linger after one side of a bridged connection closes",
		},
		cli.BoolFlag{
			Name:  "selftest",
			Usage: "exercise a local kernel.Core (pipe + connect/accept) and exit, no network involved",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress the 'stream open/closed' log lines",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		config := Config{}
		config.LocalPort = c.Int("localport")
		config.RemoteAddr = c.String("remoteaddr")
		config.Key = c.String("key")
		config.NoComp = c.Bool("nocomp")
		config.MaxFiles = c.Int("maxfiles")
		config.MaxPort = c.Int("maxport")
		config.CloseWait = c.Int("closewait")
		config.Selftest = c.Bool("selftest")
		config.Quiet = c.Bool("quiet")
		config.Log = c.String("log")

		if c.String("c") != "" {
			checkError(parseJSONConfig(&config, c.String("c")))
		}

		if config.Log != "" {
			f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			checkError(err)
			defer f.Close()
			log.SetOutput(f)
		}

		log.Println("version:", VERSION)

		core := kernel.New(config.MaxFiles, config.MaxPort)

		if config.Selftest {
			return runSelftest(core)
		}

		log.Println("remote address:", config.RemoteAddr)
		log.Println("local port:", config.LocalPort)
		log.Println("compression:", !config.NoComp)

		bridge, err := netbridge.Dial(core, config.LocalPort, config.RemoteAddr, []byte(config.Key), !config.NoComp, config.CloseWait, config.Quiet)
		checkError(err)
		defer bridge.Close()

		fid, err := core.Socket(0)
		checkError(err)
		defer core.Close(fid)

		if err := core.Connect(fid, config.LocalPort, 5*time.Second); err != nil {
			log.Printf("%+v\n", err)
			return err
		}

		done := make(chan struct{})
		go func() {
			io.Copy(&coreWriter{core: core, fid: fid}, os.Stdin)
			core.Shutdown(fid, socket.ShutdownWrite)
			close(done)
		}()
		io.Copy(os.Stdout, &coreReader{core: core, fid: fid})
		<-done
		return nil
	}

	myApp.Run(os.Args)
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
