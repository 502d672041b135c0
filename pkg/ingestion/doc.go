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

// Package ingestion turns a repository reference into a file-level
// dependency graph.
//
// # Pipeline
//
//  1. Fetch: shallow-clone the repository into a private directory and list
//     its source files (Fetcher, Snapshot).
//  2. Parse: extract import statements with Tree-sitter (TreeSitterParser).
//  3. Resolve: map each import to files of the same snapshot
//     (ImportResolver).
//  4. Link: collect unique, sorted edges into a Graph (GraphBuilder).
//
// # Supported Languages
//
//   - Go (.go): import declarations, resolved through the root go.mod
//   - Python (.py): import and from-import, relative and absolute
//   - JavaScript (.js, .jsx, .mjs, .cjs), TypeScript (.ts) and TSX (.tsx):
//     import, export-from, require() and dynamic import()
//   - C (.c, .h) and C++ (.cc, .cpp, .cxx, .hpp, .hh): quoted #include
//
// Files in other languages are not nodes.
//
// # Failure Model
//
// A failed clone is a *FetchError and leaves nothing on disk. A file that
// cannot be read or parsed is reported as a ParseError in the BuildReport:
// it remains a node but contributes no outgoing edges. A graph without any
// resolved import gets one self-loop per node so that downstream training
// always sees at least one edge per node.
//
// # Quick Start
//
//	fetcher := ingestion.NewFetcher(ingestion.FetcherConfig{}, logger)
//	snap, err := fetcher.Fetch(ctx, "https://github.com/org/repo")
//	if err != nil {
//	    return err
//	}
//	defer snap.Cleanup()
//
//	graph, report, err := ingestion.NewGraphBuilder(nil, 8, logger).Build(ctx, snap)
package ingestion
