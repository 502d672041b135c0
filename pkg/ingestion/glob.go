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
	"path"
	"path/filepath"
	"strings"
)

// matchesGlob reports whether the slash-separated relative path rel matches
// pattern. Patterns follow path.Match per segment, plus "**" for any number
// of segments and "[!...]" as a negated class. A pattern may match starting
// at any segment of rel, so "testdata" and "*.pb.go" work without a leading
// "**/".
func matchesGlob(rel, pattern string) bool {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	if pattern == "" {
		return false
	}
	pattern = strings.ReplaceAll(pattern, "[!", "[^")
	patSegs := strings.Split(pattern, "/")
	segs := strings.Split(filepath.ToSlash(rel), "/")

	for i := range segs {
		if matchSegments(segs[i:], patSegs) {
			return true
		}
	}
	return false
}

func matchSegments(segs, pat []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			for k := 0; k <= len(segs); k++ {
				if matchSegments(segs[k:], pat[1:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pat[0], segs[0]); err != nil || !ok {
			return false
		}
		segs, pat = segs[1:], pat[1:]
	}
	return len(segs) == 0
}
