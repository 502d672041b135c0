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
	"os"
	"path/filepath"
	"testing"
)

func testFiles(paths ...string) []FileInfo {
	files := make([]FileInfo, len(paths))
	for i, p := range paths {
		lang, _ := LanguageForPath(p)
		name := ""
		if lang != nil {
			name = lang.Name
		}
		files[i] = FileInfo{Path: p, Language: name}
	}
	return files
}

func TestImportResolver(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("// test module\nmodule example.com/proj // trailing\n\ngo 1.22\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	files := testFiles(
		"cmd/app/main.go",          // 0
		"internal/util/a.go",       // 1
		"internal/util/b.go",       // 2
		"pkg/__init__.py",          // 3
		"pkg/core/models.py",       // 4
		"pkg/core/views.py",        // 5
		"pkg/core/__init__.py",     // 6
		"web/index.ts",             // 7
		"web/lib/math.ts",          // 8
		"web/components/index.tsx", // 9
		"web/util.ts",              // 10
		"src/main.c",               // 11
		"src/util.h",               // 12
		"include/shared.h",         // 13
		"main.go",                  // 14
	)
	r := NewImportResolver(root, files)
	if got := r.GoModule(); got != "example.com/proj" {
		t.Fatalf("GoModule() = %q, want example.com/proj", got)
	}

	tests := []struct {
		name   string
		from   int
		target string
		want   []int
	}{
		{"go package dir", 0, "example.com/proj/internal/util", []int{1, 2}},
		{"go module root", 0, "example.com/proj", []int{14}},
		{"go stdlib", 0, "fmt", nil},
		{"go foreign module", 0, "example.com/projother/x", nil},
		{"python sibling", 5, ".models", []int{4}},
		{"python package init", 5, ".", []int{6}},
		{"python parent package", 5, "..", []int{3}},
		{"python absolute", 5, "pkg.core.models", []int{4}},
		{"python absolute package", 5, "pkg.core", []int{6}},
		{"python escapes root", 3, "...x", nil},
		{"python third party", 5, "numpy", nil},
		{"js extension added", 7, "./lib/math", []int{8}},
		{"js index file", 7, "./components", []int{9}},
		{"js compiled extension", 7, "./util.js", []int{10}},
		{"js parent dir", 8, "../util", []int{10}},
		{"js bare package", 7, "react", nil},
		{"js escapes root", 7, "../../outside", nil},
		{"c relative", 11, "util.h", []int{12}},
		{"c include dir", 11, "shared.h", []int{13}},
		{"c missing", 11, "nope.h", nil},
		{"empty target", 0, "  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(files[tt.from], ImportRef{Target: tt.target})
			if !equalInts(got, tt.want) {
				t.Errorf("Resolve(%s, %q) = %v, want %v", files[tt.from].Path, tt.target, got, tt.want)
			}
		})
	}
}

func TestImportResolver_NoGoMod(t *testing.T) {
	files := testFiles("a/a.go", "b/b.go")
	r := NewImportResolver(t.TempDir(), files)

	if got := r.Resolve(files[0], ImportRef{Target: "b"}); got != nil {
		t.Errorf("Resolve without go.mod = %v, want nil", got)
	}
}

func TestReadGoModulePath(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"module example.com/a\n", "example.com/a"},
		{"module \"example.com/quoted\"\n", "example.com/quoted"},
		{"go 1.22\n", ""},
		{"modulex foo\n", ""},
	}
	for _, tt := range tests {
		p := filepath.Join(t.TempDir(), "go.mod")
		if err := os.WriteFile(p, []byte(tt.content), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := readGoModulePath(p); got != tt.want {
			t.Errorf("readGoModulePath(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
