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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/depvec/internal/bootstrap"
	"github.com/kraklabs/depvec/internal/errors"
	"github.com/kraklabs/depvec/internal/output"
	"github.com/kraklabs/depvec/internal/ui"
	"github.com/kraklabs/depvec/pkg/ingestion"
)

// RunResult is the outcome of an inline run.
type RunResult struct {
	RepoURL         string  `json:"repo_url"`
	Files           int     `json:"files"`
	Edges           int     `json:"edges"`
	ParseErrors     int     `json:"parse_errors"`
	SelfLoops       bool    `json:"self_loop_fallback,omitempty"`
	Embeddings      int     `json:"embeddings"`
	Collection      string  `json:"collection"`
	Retries         int     `json:"retries,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// runInline processes one target without the queue: a local directory is
// read in place, anything else is cloned.
func runInline(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dim := fs.Int("dim", 0, "Embedding dimension (overrides trainer.dim)")
	epochs := fs.Int("epochs", 0, "Training epochs (overrides trainer.epochs)")
	fs.Usage = usage(fs, "run [options] <path|repo_url>",
		"Fetches, builds, trains and publishes one repository in this process.\nNo status or history is written.",
		"  depvec run .\n  depvec run --dim 128 https://github.com/org/repo")
	if err := fs.Parse(args); err != nil {
		os.Exit(errors.ExitInput)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(errors.ExitInput)
	}

	cfg, err := loadConfig(globals)
	errors.FatalError(err, globals.JSON)
	if *dim > 0 {
		cfg.Trainer.Dim = *dim
	}
	if *epochs > 0 {
		cfg.Trainer.Epochs = *epochs
	}
	logger := newLogger(cfg, globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	index, err := bootstrap.OpenIndex(cfg.Index, logger)
	if err != nil {
		errors.FatalError(errors.NewConfigError("Cannot open the vector index", err.Error(), "Check the index section of the configuration", err), globals.JSON)
	}
	defer func() { _ = index.Close() }()

	res, err := runPipeline(ctx, bootstrap.NewPipeline(cfg, index, logger), fs.Arg(0), NewProgressConfig(globals))
	if err != nil {
		errors.FatalError(errors.NewInternalError("Pipeline failed", err.Error(), "Re-run with --debug for details", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(res)
		return
	}
	ui.Successf("Published %d vectors to %s", res.Embeddings, res.Collection)
	fmt.Println(ui.Label("Repository: "), res.RepoURL)
	fmt.Println(ui.Label("Files:      "), res.Files)
	fmt.Println(ui.Label("Edges:      "), res.Edges)
	if res.ParseErrors > 0 {
		ui.Warningf("%d files failed to parse", res.ParseErrors)
	}
	if res.SelfLoops {
		ui.Warning("No imports resolved; every file was linked to itself")
	}
	fmt.Println(ui.Label("Duration:   "), time.Duration(res.DurationSeconds*float64(time.Second)).Round(time.Millisecond))
}

// runPipeline runs the four stages for target and removes any checkout it
// made.
func runPipeline(ctx context.Context, p *bootstrap.Pipeline, target string, progress ProgressConfig) (*RunResult, error) {
	start := time.Now()

	var snap *ingestion.Snapshot
	err := stage(progress, "fetch", func() (err error) {
		if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
			snap, err = p.Fetcher.Open(target)
			return err
		}
		snap, err = p.Fetcher.Fetch(ctx, target)
		return err
	})
	defer func() { _ = snap.Cleanup() }()
	if err != nil {
		return nil, err
	}

	var (
		graph  *ingestion.Graph
		report *ingestion.BuildReport
	)
	if err := stage(progress, "build", func() (err error) {
		graph, report, err = p.Builder.Build(ctx, snap)
		return err
	}); err != nil {
		return nil, err
	}
	if graph.NodeCount() == 0 {
		return nil, fmt.Errorf("%s: no supported source files", snap.RepoURL)
	}

	var vectors [][]float32
	if err := stage(progress, "train", func() (err error) {
		vectors, err = p.Trainer.Train(ctx, graph)
		return err
	}); err != nil {
		return nil, err
	}

	res := &RunResult{
		RepoURL:     snap.RepoURL,
		Files:       graph.NodeCount(),
		Edges:       len(graph.Edges),
		ParseErrors: len(report.ParseErrors),
		SelfLoops:   report.SelfLoopFallback,
	}
	if err := stage(progress, "publish", func() error {
		pub, err := p.Publisher.Publish(ctx, vectors, graph.Nodes, snap.RepoURL)
		if err != nil {
			return err
		}
		res.Embeddings = pub.Points
		res.Collection = pub.Collection
		res.Retries = pub.Retries
		return nil
	}); err != nil {
		return nil, err
	}
	res.DurationSeconds = time.Since(start).Seconds()
	return res, nil
}

func stage(progress ProgressConfig, name string, fn func() error) error {
	spinner := NewSpinner(progress, stageDescription(name))
	err := fn()
	if spinner != nil {
		_ = spinner.Finish()
	}
	return err
}
