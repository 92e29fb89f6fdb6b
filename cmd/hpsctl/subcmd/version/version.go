// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package version provides the hpsctl "version" subcommand, adapted from
// the teacher's subcmd/version: the CIPD package resolution and git log
// lookups in the teacher's version only make sense for a binary shipped
// through Chromium's CIPD infrastructure, so this subcommand keeps only
// the generic Go build-info half.
package version

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/google/subcommands"

	"github.com/kaikei-e/alt-hps/version"
)

// Cmd returns the Command for the "version" subcommand.
func Cmd(ver string) *Command {
	return &Command{version: ver}
}

// Command implements the version subcommand.
type Command struct {
	version string
}

func (*Command) Name() string     { return "version" }
func (*Command) Synopsis() string { return "prints the hpsctl version" }
func (*Command) Usage() string {
	return "Prints the hpsctl version and the Go module build info it was compiled from.\n"
}

func (c *Command) SetFlags(*flag.FlagSet) {}

func (c *Command) Execute(_ context.Context, flagSet *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if flagSet.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "position arguments not expected")
		return subcommands.ExitUsageError
	}
	fmt.Println(c.version)

	info, err := version.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return subcommands.ExitSuccess
	}
	fmt.Printf("module\t%s\t%s\n", info.ModulePath(), info.ModuleVersion())
	settings := info.VCSSettings()
	for _, k := range slices.Sorted(maps.Keys(settings)) {
		fmt.Printf("build\t%s=%s\n", k, settings[k])
	}
	return subcommands.ExitSuccess
}
