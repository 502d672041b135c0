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
	sitter "github.com/smacker/go-tree-sitter"
)

// extractCIncludes collects quoted #include paths. System includes
// (<stdio.h>) never resolve to repository files and are skipped.
func extractCIncludes(root *sitter.Node, src []byte) []ImportRef {
	var refs []ImportRef
	walk(root, func(n *sitter.Node) bool {
		if n.Type() != "preproc_include" {
			return true
		}
		path := n.ChildByFieldName("path")
		if path != nil && path.Type() == "string_literal" {
			if target := stringLiteral(path, src); target != "" {
				refs = append(refs, ImportRef{Target: target, Line: lineOf(n)})
			}
		}
		return false
	})
	return refs
}
