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

package testing

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kraklabs/depvec/pkg/queue"
	"github.com/kraklabs/depvec/pkg/storage"
)

// SetupRedis starts an in-process Redis and returns a store bound to it.
// Both are closed when the test finishes.
//
// Example:
//
//	func TestEnqueue(t *testing.T) {
//	    store, mr := depvectest.SetupRedis(t)
//	    ...
//	    depth, _ := mr.List("depvec:queue")
//	}
func SetupRedis(t *testing.T) (*queue.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return queue.NewRedisStore(client, queue.DefaultKeys()), mr
}

// SetupTestIndex creates an embedded vector index in a temporary directory.
// The index is closed when the test finishes.
func SetupTestIndex(t *testing.T) *storage.EmbeddedBackend {
	t.Helper()

	backend, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{
		Path: filepath.Join(t.TempDir(), "index.db"),
	})
	if err != nil {
		t.Fatalf("failed to create test index: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WriteTree writes files (relative path -> content) under root.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// RequireGit skips the test when no git binary is available.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// InitGitRepo creates a committed git repository holding files and returns
// its file:// URL, suitable for shallow clones.
func InitGitRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	RequireGit(t)

	dir := t.TempDir()
	WriteTree(t, dir, files)

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=depvec", "GIT_AUTHOR_EMAIL=depvec@example.com",
			"GIT_COMMITTER_NAME=depvec", "GIT_COMMITTER_EMAIL=depvec@example.com",
			"GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "--quiet")
	run("add", "-A")
	run("commit", "--quiet", "-m", "fixture")

	return "file://" + filepath.ToSlash(dir)
}

// MixedRepo is a small multi-language repository with resolvable imports:
//
//	cmd/app/main.go   -> internal/util (util.go, strings.go)
//	py/pkg/a.py       -> py/pkg/b.py
//	web/index.ts      -> web/lib/math.ts
//	c/main.c          -> c/util.h
func MixedRepo() map[string]string {
	return map[string]string{
		"go.mod":                    "module example.com/mixed\n\ngo 1.22\n",
		"cmd/app/main.go":           "package main\n\nimport (\n\t\"fmt\"\n\n\t\"example.com/mixed/internal/util\"\n)\n\nfunc main() { fmt.Println(util.Name()) }\n",
		"internal/util/util.go":     "package util\n\nfunc Name() string { return upper(\"x\") }\n",
		"internal/util/strings.go":  "package util\n\nimport \"strings\"\n\nfunc upper(s string) string { return strings.ToUpper(s) }\n",
		"py/pkg/__init__.py":        "",
		"py/pkg/a.py":               "from . import b\nimport os\n",
		"py/pkg/b.py":               "VALUE = 1\n",
		"web/index.ts":              "import { add } from \"./lib/math\";\nconsole.log(add(1, 2));\n",
		"web/lib/math.ts":           "export function add(a: number, b: number): number { return a + b; }\n",
		"c/main.c":                  "#include <stdio.h>\n#include \"util.h\"\nint main(void) { return util(); }\n",
		"c/util.h":                  "int util(void);\n",
		"README.md":                 "# mixed\n",
		"node_modules/dep/index.js": "module.exports = {};\n",
	}
}
