// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// hpsctl is the reference integration CLI for package hps: it drives
// synthetic real-time/best-effort load against a configured
// hps.Semaphore and reports queue/leak snapshots, standing in for the LLM
// inference gateway that is an external collaborator per spec.md §1.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"

	log "github.com/golang/glog"
	"github.com/google/subcommands"

	"github.com/kaikei-e/alt-hps/cmd/hpsctl/subcmd/simulate"
	"github.com/kaikei-e/alt-hps/cmd/hpsctl/subcmd/version"
)

const versionID = "v0.1.0"

var versionStr = "hpsctl " + versionID

var (
	pprofAddr  string
	cpuprofile string
)

func main() {
	// Wraps hpsctlMain() because os.Exit() doesn't wait for defers.
	os.Exit(hpsctlMain())
}

func hpsctlMain() int {
	flag.CommandLine.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "%s\n\nUsage: hpsctl [flags] [command] [arguments]\n\ne.g.\n $ hpsctl simulate -rt_rate 10 -be_rate 2\n\n", versionStr)
		fmt.Fprintln(w, `Use "hpsctl help" to display commands.`)
		fmt.Fprintln(w, `Use "hpsctl help [command]" for more information about a command.`)
	}

	flag.StringVar(&pprofAddr, "pprof_addr", "", `listen address for "go tool pprof", e.g. "localhost:6060"`)
	flag.StringVar(&cpuprofile, "cpuprofile", "", "write cpu profile to this file")

	var printVersion bool
	flag.BoolVar(&printVersion, "version", false, "print version")
	flag.Parse()

	ctx := context.Background()
	defer log.Flush()

	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	if printVersion {
		return int(version.Cmd(versionStr).Execute(ctx, flag.CommandLine))
	}

	if pprofAddr != "" {
		fmt.Fprintf(os.Stderr, "pprof is enabled, listening at http://%s/debug/pprof/\n", pprofAddr)
		go func() {
			log.Infof("pprof http listener: %v", http.ListenAndServe(pprofAddr, nil))
		}()
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			log.Fatalf("failed to create cpuprofile file: %v", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Errorf("failed to start CPU profiler: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	subcommands.Register(simulate.Cmd(), "")
	subcommands.Register(version.Cmd(versionStr), "command-help")
	subcommands.Register(subcommands.FlagsCommand(), "command-help")
	subcommands.Register(subcommands.HelpCommand(), "command-help")

	return int(subcommands.Execute(ctx))
}
