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

import "testing"

func TestMatchesGlob(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		{"exact", "foo.go", "foo.go", true},
		{"exact no match", "foo.go", "bar.go", false},
		{"star ext", "foo.go", "*.go", true},
		{"star ext nested", "a/b/foo.pb.go", "*.pb.go", true},
		{"star no match", "foo.txt", "*.go", false},
		{"doublestar prefix", "a/b/c/foo.go", "**/*.go", true},
		{"doublestar prefix root", "foo.go", "**/*.go", true},
		{"dir doublestar", "node_modules/a/b.js", "node_modules/**", true},
		{"dir doublestar exact", "testdata", "testdata/**", true},
		{"dir doublestar nested", "apps/catalog/bin/tool", "bin/**", true},
		{"dir prefix is not a dir", "apps/bindings/foo", "bin/**", false},
		{"doublestar middle", "src/pkg/util/helper.go", "src/**/helper.go", true},
		{"question", "fo1.go", "fo?.go", true},
		{"question too long", "fooo.go", "fo?.go", false},
		{"class", "file7.py", "file[0-9].py", true},
		{"negated class", "foo.go", "foo.[!ab]o", true},
		{"negated class no match", "foo.ao", "foo.[!ab]o", false},
		{"segment anywhere", "src/generated/x.ts", "generated", false},
		{"dir segment", "src/generated", "generated", true},
		{"star does not cross slash", "a/b/c.go", "a/*.go", false},
		{"dotfile not git dir", ".gitignore", ".git/**", false},
		{"empty pattern", "foo.go", "", false},
		{"malformed pattern", "foo.go", "[", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesGlob(tt.path, tt.pattern); got != tt.want {
				t.Errorf("matchesGlob(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}
