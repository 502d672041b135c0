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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is wrapped when a file's syntax tree contains error nodes.
var ErrSyntax = errors.New("syntax error")

// ErrUnsupportedLanguage is returned for files outside the registry.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// TreeSitterParser extracts imports using Tree-sitter grammars.
//
// A sitter.Parser is not safe for concurrent use, so each call builds its
// own; TreeSitterParser itself can be shared across goroutines.
type TreeSitterParser struct {
	logger *slog.Logger
}

// NewTreeSitterParser creates a parser. A nil logger uses slog.Default().
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeSitterParser{logger: logger}
}

// ParseImports implements ImportParser.
func (p *TreeSitterParser) ParseImports(ctx context.Context, file FileInfo, src []byte) ([]ImportRef, error) {
	lang, ok := LanguageByName(file.Language)
	if !ok {
		lang, ok = LanguageForPath(file.Path)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", file.Path, ErrUnsupportedLanguage)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse %s: empty tree", file.Path)
	}
	if root.HasError() {
		line := firstErrorLine(root)
		return nil, fmt.Errorf("%s:%d: %w", file.Path, line, ErrSyntax)
	}

	refs := lang.extract(root, src)
	p.logger.Debug("parse.imports", "path", file.Path, "language", lang.Name, "imports", len(refs))
	return refs, nil
}

// firstErrorLine returns the 1-based line of the first ERROR or MISSING
// node, or 0 when none is found.
func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if line := firstErrorLine(child); line > 0 {
			return line
		}
	}
	return 0
}

// walk calls fn for n and every descendant in document order. Returning
// false from fn skips the node's children.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

// stringLiteral returns the text of a string node without its quotes.
func stringLiteral(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	s := n.Content(src)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				s = s[1 : len(s)-1]
			}
		}
	}
	return strings.TrimSpace(s)
}

func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}
