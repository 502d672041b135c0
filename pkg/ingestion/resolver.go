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
	"bufio"
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ImportResolver maps import references to snapshot files.
//
// Resolution is purely path based and never touches the network: imports
// that point outside the snapshot (standard libraries, third-party packages,
// paths escaping the root) resolve to nothing and are dropped.
type ImportResolver struct {
	index    map[string]int   // relative path -> node index
	goDirs   map[string][]int // package directory -> Go file nodes
	goModule string
}

// NewImportResolver indexes files, whose positions are the node indexes,
// and reads the module path from root/go.mod when present.
func NewImportResolver(root string, files []FileInfo) *ImportResolver {
	r := &ImportResolver{
		index:  make(map[string]int, len(files)),
		goDirs: make(map[string][]int),
	}
	for i, f := range files {
		r.index[f.Path] = i
		if f.Language == "go" {
			dir := path.Dir(f.Path)
			r.goDirs[dir] = append(r.goDirs[dir], i)
		}
	}
	if root != "" {
		r.goModule = readGoModulePath(filepath.Join(root, "go.mod"))
	}
	return r
}

// GoModule returns the module path found in go.mod, if any.
func (r *ImportResolver) GoModule() string { return r.goModule }

// Resolve returns the node indexes ref points to when imported from file.
// A Go package import yields every Go file of the package; the other
// families yield at most one file.
func (r *ImportResolver) Resolve(file FileInfo, ref ImportRef) []int {
	lang, ok := LanguageByName(file.Language)
	if !ok {
		if lang, ok = LanguageForPath(file.Path); !ok {
			return nil
		}
	}
	fromDir := path.Dir(file.Path)
	target := strings.TrimSpace(ref.Target)
	if target == "" {
		return nil
	}

	switch lang.Family {
	case FamilyGo:
		return r.resolveGo(target)
	case FamilyPython:
		return r.resolvePython(fromDir, target)
	case FamilyJS:
		return r.resolveJS(fromDir, target)
	case FamilyC:
		return r.first(path.Join(fromDir, target), target, path.Join("include", target))
	}
	return nil
}

func (r *ImportResolver) resolveGo(target string) []int {
	if r.goModule == "" {
		return nil
	}
	var dir string
	switch {
	case target == r.goModule:
		dir = "."
	case strings.HasPrefix(target, r.goModule+"/"):
		dir = strings.TrimPrefix(target, r.goModule+"/")
	default:
		return nil
	}
	return r.goDirs[dir]
}

func (r *ImportResolver) resolvePython(fromDir, target string) []int {
	dots := len(target) - len(strings.TrimLeft(target, "."))
	rest := strings.ReplaceAll(target[dots:], ".", "/")

	base := "."
	if dots > 0 {
		var ok bool
		if base, ok = parentDir(fromDir, dots-1); !ok {
			return nil
		}
	}
	if rest == "" {
		return r.first(path.Join(base, "__init__.py"))
	}
	p := path.Join(base, rest)
	return r.first(p+".py", path.Join(p, "__init__.py"))
}

func (r *ImportResolver) resolveJS(fromDir, target string) []int {
	if !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") && target != "." && target != ".." {
		return nil
	}
	p := path.Join(fromDir, target)
	exts := familyExtensions[FamilyJS]

	candidates := []string{p}
	for _, ext := range exts {
		candidates = append(candidates, p+ext)
	}
	// "./util.js" in TypeScript sources names the compiled output of util.ts.
	if ext := path.Ext(p); ext != "" {
		stem := strings.TrimSuffix(p, ext)
		for _, alt := range exts {
			candidates = append(candidates, stem+alt)
		}
	}
	for _, ext := range exts {
		candidates = append(candidates, path.Join(p, "index"+ext))
	}
	return r.first(candidates...)
}

// first returns the node of the first candidate present in the snapshot.
func (r *ImportResolver) first(candidates ...string) []int {
	for _, c := range candidates {
		c = path.Clean(c)
		if c == ".." || strings.HasPrefix(c, "../") || strings.HasPrefix(c, "/") {
			continue
		}
		if idx, ok := r.index[c]; ok {
			return []int{idx}
		}
	}
	return nil
}

// parentDir walks n levels up from dir ("." is the root). It reports false
// when that would leave the root.
func parentDir(dir string, n int) (string, bool) {
	for range n {
		if dir == "." {
			return "", false
		}
		dir = path.Dir(dir)
	}
	return dir, true
}

// readGoModulePath returns the module directive of a go.mod file, or "".
func readGoModulePath(gomod string) string {
	data, err := os.ReadFile(gomod) // #nosec G304 - path is inside the snapshot
	if err != nil {
		return ""
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		mod, ok := strings.CutPrefix(line, "module")
		if !ok || mod == "" || (mod[0] != ' ' && mod[0] != '\t') {
			continue
		}
		mod = strings.TrimSpace(mod)
		if unq, err := strconv.Unquote(mod); err == nil {
			mod = unq
		}
		return mod
	}
	return ""
}
