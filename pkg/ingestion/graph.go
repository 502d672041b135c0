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

package ingestion

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Edge is a directed import edge between two node indexes.
type Edge struct {
	From int
	To   int
}

// Graph is the file-level dependency graph of one snapshot. Nodes[i] is the
// relative path of node i; edges are unique and sorted.
type Graph struct {
	Nodes []string
	Edges []Edge
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// ForEachEdge calls fn for every edge in order.
func (g *Graph) ForEachEdge(fn func(from, to int)) {
	for _, e := range g.Edges {
		fn(e.From, e.To)
	}
}

// ParseError records a file that stayed a node but contributed no edges.
type ParseError struct {
	Path string
	Err  error
}

func (e ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }

func (e ParseError) Unwrap() error { return e.Err }

// BuildReport summarizes one Build call.
type BuildReport struct {
	Files            int
	Imports          int
	Resolved         int
	Unresolved       int
	Edges            int
	ParseErrors      []ParseError
	SelfLoopFallback bool
	Duration         time.Duration
}

// DefaultParseConcurrency bounds concurrent file parses.
const DefaultParseConcurrency = 8

// GraphBuilder turns a snapshot into a Graph.
type GraphBuilder struct {
	parser      ImportParser
	concurrency int
	logger      *slog.Logger
}

// NewGraphBuilder creates a builder. A nil parser uses Tree-sitter; a
// non-positive concurrency uses DefaultParseConcurrency.
func NewGraphBuilder(parser ImportParser, concurrency int, logger *slog.Logger) *GraphBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = NewTreeSitterParser(logger)
	}
	if concurrency <= 0 {
		concurrency = DefaultParseConcurrency
	}
	return &GraphBuilder{parser: parser, concurrency: concurrency, logger: logger}
}

type parsedFile struct {
	refs []ImportRef
	err  error
}

// Build parses every snapshot file and links resolved imports. Per-file
// failures land in the report; only a cancelled context fails the build.
// When no edge is found every node gets a self-loop.
func (b *GraphBuilder) Build(ctx context.Context, snap *Snapshot) (*Graph, *BuildReport, error) {
	start := time.Now()
	files := snap.Files
	results := make([]parsedFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.parseFile(gctx, files[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}

	graph := &Graph{Nodes: make([]string, len(files))}
	report := &BuildReport{Files: len(files)}
	resolver := NewImportResolver(snap.Root, files)
	seen := make(map[Edge]struct{})

	for i, f := range files {
		graph.Nodes[i] = f.Path
		res := results[i]
		if res.err != nil {
			perr := ParseError{Path: f.Path, Err: res.err}
			report.ParseErrors = append(report.ParseErrors, perr)
			b.logger.Warn("graph.parse.error", "path", f.Path, "err", res.err)
			continue
		}
		for _, ref := range res.refs {
			report.Imports++
			targets := resolver.Resolve(f, ref)
			if len(targets) == 0 {
				report.Unresolved++
				continue
			}
			report.Resolved++
			for _, t := range targets {
				if t == i {
					continue
				}
				seen[Edge{From: i, To: t}] = struct{}{}
			}
		}
	}

	graph.Edges = make([]Edge, 0, len(seen))
	for e := range seen {
		graph.Edges = append(graph.Edges, e)
	}
	slices.SortFunc(graph.Edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})

	if len(graph.Edges) == 0 && len(graph.Nodes) > 0 {
		report.SelfLoopFallback = true
		for i := range graph.Nodes {
			graph.Edges = append(graph.Edges, Edge{From: i, To: i})
		}
	}
	report.Edges = len(graph.Edges)
	report.Duration = time.Since(start)
	recordBuild(report, report.Duration)

	b.logger.Info("graph.build.complete",
		"nodes", len(graph.Nodes),
		"edges", report.Edges,
		"imports", report.Imports,
		"resolved", report.Resolved,
		"parse_errors", len(report.ParseErrors),
		"self_loops", report.SelfLoopFallback,
		"duration", report.Duration,
	)
	return graph, report, nil
}

func (b *GraphBuilder) parseFile(ctx context.Context, f FileInfo) (out parsedFile) {
	defer func() {
		if r := recover(); r != nil {
			out = parsedFile{err: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	src, err := os.ReadFile(f.FullPath)
	if err != nil {
		return parsedFile{err: fmt.Errorf("read: %w", err)}
	}
	refs, err := b.parser.ParseImports(ctx, f, src)
	return parsedFile{refs: refs, err: err}
}
