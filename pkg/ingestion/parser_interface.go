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

import "context"

// ImportParser extracts import references from one source file.
type ImportParser interface {
	// ParseImports returns the raw import references of file, whose bytes
	// are src. A syntax error in src is reported as an error; the caller
	// treats the file as a node without outgoing edges.
	ParseImports(ctx context.Context, file FileInfo, src []byte) ([]ImportRef, error)
}

var _ ImportParser = (*TreeSitterParser)(nil)

// ImportRef is one import statement as written in the source. Target keeps
// the language's own spelling: a Go import path, a dotted Python module
// (leading dots for relative imports), a JS module specifier or a C include
// path.
type ImportRef struct {
	Target string
	Line   int
}
