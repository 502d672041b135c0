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
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Family groups languages whose files may import one another and therefore
// share resolution rules.
type Family string

const (
	FamilyGo     Family = "go"
	FamilyPython Family = "python"
	FamilyJS     Family = "js"
	FamilyC      Family = "c"
)

// importExtractor collects the raw import references of a parsed file.
type importExtractor func(root *sitter.Node, src []byte) []ImportRef

// Language describes one registered source language.
type Language struct {
	Name       string
	Family     Family
	Extensions []string
	grammar    func() *sitter.Language
	extract    importExtractor
}

var languages = []*Language{
	{Name: "go", Family: FamilyGo, Extensions: []string{".go"}, grammar: golang.GetLanguage, extract: extractGoImports},
	{Name: "python", Family: FamilyPython, Extensions: []string{".py"}, grammar: python.GetLanguage, extract: extractPythonImports},
	{Name: "javascript", Family: FamilyJS, Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, grammar: javascript.GetLanguage, extract: extractJSImports},
	{Name: "typescript", Family: FamilyJS, Extensions: []string{".ts"}, grammar: typescript.GetLanguage, extract: extractJSImports},
	{Name: "tsx", Family: FamilyJS, Extensions: []string{".tsx"}, grammar: tsx.GetLanguage, extract: extractJSImports},
	{Name: "c", Family: FamilyC, Extensions: []string{".c", ".h"}, grammar: c.GetLanguage, extract: extractCIncludes},
	{Name: "cpp", Family: FamilyC, Extensions: []string{".cc", ".cpp", ".cxx", ".hpp", ".hh"}, grammar: cpp.GetLanguage, extract: extractCIncludes},
}

var (
	languageByExt    = map[string]*Language{}
	languageByName   = map[string]*Language{}
	familyExtensions = map[Family][]string{}
)

func init() {
	for _, l := range languages {
		languageByName[l.Name] = l
		for _, ext := range l.Extensions {
			languageByExt[ext] = l
			familyExtensions[l.Family] = append(familyExtensions[l.Family], ext)
		}
	}
}

// LanguageForPath returns the registered language for a file path, matched
// on its lower-cased extension.
func LanguageForPath(path string) (*Language, bool) {
	l, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
	return l, ok
}

// LanguageByName returns the registered language called name.
func LanguageByName(name string) (*Language, bool) {
	l, ok := languageByName[name]
	return l, ok
}

// SupportedExtensions lists every registered extension.
func SupportedExtensions() []string {
	out := make([]string, 0, len(languageByExt))
	for _, l := range languages {
		out = append(out, l.Extensions...)
	}
	return out
}
