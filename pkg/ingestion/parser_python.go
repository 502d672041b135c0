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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractPythonImports collects module references from import and
// from-import statements at any depth (imports inside functions and try
// blocks count).
//
// For "from M import a, b" the candidates are M, M.a and M.b: a and b may be
// submodules or plain attributes of M, and the resolver keeps whichever
// exists. "from . import x" yields "." and ".x".
func extractPythonImports(root *sitter.Node, src []byte) []ImportRef {
	var refs []ImportRef
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if name := pythonModuleName(n.NamedChild(i), src); name != "" {
					refs = append(refs, ImportRef{Target: name, Line: lineOf(n)})
				}
			}
			return false
		case "import_from_statement":
			refs = append(refs, pythonFromImport(n, src)...)
			return false
		}
		return true
	})
	return refs
}

func pythonFromImport(n *sitter.Node, src []byte) []ImportRef {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return nil
	}
	module := strings.TrimSpace(moduleNode.Content(src))
	if module == "" {
		return nil
	}

	line := lineOf(n)
	refs := []ImportRef{{Target: module, Line: line}}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() {
			continue
		}
		name := pythonModuleName(child, src)
		if name == "" {
			continue
		}
		sep := "."
		if strings.HasSuffix(module, ".") {
			sep = ""
		}
		refs = append(refs, ImportRef{Target: module + sep + name, Line: line})
	}
	return refs
}

// pythonModuleName returns the dotted name of a dotted_name or
// aliased_import node.
func pythonModuleName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "dotted_name":
		return n.Content(src)
	case "aliased_import":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}
	return ""
}
