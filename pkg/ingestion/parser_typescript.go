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

// extractJSImports collects module specifiers from JavaScript, TypeScript
// and TSX sources:
//
//	import x from "./a"
//	import "./side-effect"
//	export { y } from "./b"
//	const z = require("./c")
//	await import("./d")
//
// Only string-literal specifiers are collected; computed ones are ignored.
func extractJSImports(root *sitter.Node, src []byte) []ImportRef {
	var refs []ImportRef
	add := func(n *sitter.Node, at *sitter.Node) {
		if n == nil || n.Type() != "string" {
			return
		}
		if target := stringLiteral(n, src); target != "" {
			refs = append(refs, ImportRef{Target: target, Line: lineOf(at)})
		}
	}

	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement", "export_statement":
			add(n.ChildByFieldName("source"), n)
			return n.Type() == "export_statement"
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil {
				return true
			}
			if fn.Type() == "import" || (fn.Type() == "identifier" && fn.Content(src) == "require") {
				if args := n.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
					add(args.NamedChild(0), n)
				}
			}
		}
		return true
	})
	return refs
}
