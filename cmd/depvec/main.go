// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the depvec CLI: the dispatcher HTTP service, the
// embedding worker and a few operator commands.
//
// Usage:
//
//	depvec init                       Write depvec.yaml with defaults
//	depvec dispatcher                 Serve the dispatch API
//	depvec worker [--once]            Run the worker poll loop
//	depvec enqueue <repo_url>         Queue a repository
//	depvec status [--json]            Show worker status and queue depth
//	depvec history [--limit N]        Show recent jobs
//	depvec run <path|repo_url>        Run the pipeline inline, without a queue
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/config"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are accepted before the command name.
type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Quiet      bool
	NoColor    bool
	Debug      bool
}

func main() {
	var (
		globals     GlobalFlags
		showVersion bool
	)
	flag.CommandLine.SetInterspersed(false)
	flag.StringVarP(&globals.ConfigPath, "config", "c", config.DefaultFileName, "Path to the configuration file")
	flag.BoolVar(&globals.JSON, "json", false, "Machine-readable output")
	flag.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&globals.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `depvec - structural embeddings for source repositories

depvec clones repositories, builds their file-level dependency graph and
learns one vector per file from random walks over that graph. Jobs are
queued through the dispatcher and processed by one or more workers.

Usage:
  depvec [global options] <command> [options]

Commands:
  init          Write a configuration file with defaults
  dispatcher    Serve the dispatch HTTP API
  worker        Run the worker poll loop
  enqueue       Queue a repository for processing
  status        Show worker status and queue depth
  history       Show recent job records
  run           Process a local directory or repository inline

Global Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Getting Started:
  1. Write configuration:   depvec init --admin-token <secret>
  2. Start the dispatcher:  depvec dispatcher
  3. Start a worker:        depvec worker
  4. Queue a repository:    depvec enqueue https://github.com/org/repo

Environment Variables:
  DEPVEC_REDIS_ADDR, DEPVEC_ADMIN_TOKEN, DEPVEC_INDEX_URL and the other
  DEPVEC_* variables override the configuration file.

For detailed command help: depvec <command> --help
`)
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("depvec version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor || os.Getenv("NO_COLOR") != "")

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(errors.ExitInput)
	}

	command, cmdArgs := args[0], args[1:]
	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "dispatcher":
		runDispatcher(cmdArgs, globals)
	case "worker":
		runWorker(cmdArgs, globals)
	case "enqueue":
		runEnqueue(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "history":
		runHistory(cmdArgs, globals)
	case "run":
		runInline(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(errors.ExitInput)
	}
}

// loadConfig loads the configuration named by the global flags and reports
// failures as configuration errors.
func loadConfig(globals GlobalFlags) (*config.Config, error) {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, errors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Fix the file or run 'depvec init' to write a fresh one",
			err,
		)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, globals GlobalFlags) *slog.Logger {
	logger := bootstrap.NewLogger(cfg.Log, os.Stderr, globals.Debug)
	slog.SetDefault(logger)
	return logger
}

// usage builds a pflag usage function with a description and examples.
func usage(fs *flag.FlagSet, synopsis, description, examples string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: depvec %s\n\n%s\n\nOptions:\n", synopsis, description)
		fs.PrintDefaults()
		if examples != "" {
			fmt.Fprintf(os.Stderr, "\nExamples:\n%s\n", examples)
		}
	}
}
