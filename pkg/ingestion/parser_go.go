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

// extractGoImports collects import paths from the top-level
// import_declaration nodes, covering single imports and import blocks.
func extractGoImports(root *sitter.Node, src []byte) []ImportRef {
	var refs []ImportRef
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "import_declaration" {
			continue
		}
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			child := decl.NamedChild(j)
			switch child.Type() {
			case "import_spec":
				refs = appendGoImportSpec(refs, child, src)
			case "import_spec_list":
				for k := 0; k < int(child.NamedChildCount()); k++ {
					if spec := child.NamedChild(k); spec.Type() == "import_spec" {
						refs = appendGoImportSpec(refs, spec, src)
					}
				}
			}
		}
	}
	return refs
}

func appendGoImportSpec(refs []ImportRef, spec *sitter.Node, src []byte) []ImportRef {
	pathNode := spec.ChildByFieldName("path")
	if pathNode == nil {
		for i := 0; i < int(spec.NamedChildCount()); i++ {
			child := spec.NamedChild(i)
			if child.Type() == "interpreted_string_literal" || child.Type() == "raw_string_literal" {
				pathNode = child
				break
			}
		}
	}
	if pathNode == nil {
		return refs
	}
	if target := stringLiteral(pathNode, src); target != "" {
		refs = append(refs, ImportRef{Target: target, Line: lineOf(spec)})
	}
	return refs
}
