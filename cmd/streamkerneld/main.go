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

// streamkerneld hosts a kernel.Core, runs a demonstration echo service on
// one in-kernel port, and exposes that port to the network with netbridge
// so a streamkernelc on another machine can dial in.
package main

import (
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli"

	"github.com/go-tinyos/streamkernel/kernel"
	"github.com/go-tinyos/streamkernel/netbridge"
	"github.com/go-tinyos/streamkernel/std"
)

// VERSION is injected by buildflags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "streamkerneld"
	myApp.Usage = "teaching-kernel stream I/O daemon"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen,l",
			Value: ":29900",
			Usage: `TCP address netbridge listens on, eg "IP:29900"`,
		},
		cli.IntFlag{
			Name:  "port,p",
			Value: 7,
			Usage: "in-kernel port the demonstration echo service binds and listens on",
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
		cli.StringFlag{
			Name:  "statslog",
			Value: "",
			Usage: "collect kernel stats to a CSV file, aware of Go's time format, eg ./stats-20060102.log",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 60,
			Usage: "stats collection period, in seconds",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "start profiling server on :6060",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress the echo service's per-connection log lines",
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
		config.Listen = c.String("listen")
		config.Port = c.Int("port")
		config.Key = c.String("key")
		config.NoComp = c.Bool("nocomp")
		config.MaxFiles = c.Int("maxfiles")
		config.MaxPort = c.Int("maxport")
		config.CloseWait = c.Int("closewait")
		config.StatsLog = c.String("statslog")
		config.StatsPeriod = c.Int("statsperiod")
		config.Pprof = c.Bool("pprof")
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
		log.Println("listening on:", config.Listen)
		log.Println("echo port:", config.Port)
		log.Println("compression:", !config.NoComp)
		log.Println("maxfiles:", config.MaxFiles, "maxport:", config.MaxPort)
		log.Println("closewait:", config.CloseWait)
		log.Println("statslog:", config.StatsLog, "statsperiod:", config.StatsPeriod)

		if config.Pprof {
			go http.ListenAndServe(":6060", nil)
		}

		core := kernel.New(config.MaxFiles, config.MaxPort)

		lfid, err := core.Socket(config.Port)
		checkError(err)
		checkError(core.Listen(lfid))
		go runEchoService(core, lfid, config.Quiet)

		listenAddr, err := netbridge.ParseServeAddr(config.Listen)
		checkError(err)
		ln, err := net.Listen("tcp", listenAddr)
		checkError(err)
		log.Println("netbridge listening on:", ln.Addr())

		bridge, err := netbridge.Serve(core, config.Port, ln, []byte(config.Key), !config.NoComp, config.CloseWait, config.Quiet)
		checkError(err)
		defer bridge.Close()

		stop := make(chan struct{})
		go std.StatsLogger(stop, config.StatsLog, time.Duration(config.StatsPeriod)*time.Second,
			statsHeader, statsRow(core))

		select {}
	}

	myApp.Run(os.Args)
}

// runEchoService accepts connections on the kernel's demonstration listener
// and bounces every byte back to its sender — standing in for whatever
// real service a teaching exercise wires up to this port, the same role
// the teacher's handleMux plays for its dialed TCP/UNIX target.
func runEchoService(core *kernel.Core, lfid int, quiet bool) {
	for {
		fid, err := core.Accept(lfid)
		if err != nil {
			log.Println("echo service stopped accepting:", err)
			return
		}
		if !quiet {
			log.Println("echo: accepted fid", fid)
		}
		go func(fid int) {
			defer core.Close(fid)
			buf := make([]byte, 4096)
			for {
				n, err := core.Read(fid, buf)
				if n > 0 {
					if _, werr := core.Write(fid, buf[:n]); werr != nil {
						return
					}
				}
				if err != nil {
					return
				}
			}
		}(fid)
	}
}

func statsHeader() []string {
	return []string{"PipesCreated", "SocketsCreated", "BytesRead", "BytesWritten", "ConnectsTimedOut", "AcceptsRevoked"}
}

func statsRow(core *kernel.Core) func() []string {
	return func() []string {
		s := core.Stats.Snapshot()
		return []string{
			strconv.FormatInt(s.PipesCreated, 10),
			strconv.FormatInt(s.SocketsCreated, 10),
			strconv.FormatInt(s.BytesRead, 10),
			strconv.FormatInt(s.BytesWritten, 10),
			strconv.FormatInt(s.ConnectsTimedOut, 10),
			strconv.FormatInt(s.AcceptsRevoked, 10),
		}
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
