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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/depvec/internal/contract"
)

// scpURLPattern matches scp-style references such as git@github.com:org/repo.git.
var scpURLPattern = regexp.MustCompile(`^git@[A-Za-z0-9.\-]+:[\w.\-/]+$`)

// gitShellChars are rejected in any reference handed to git.
var gitShellChars = regexp.MustCompile("[;&|$`\\n\\r\\\\]")

// DefaultExcludedDirs are directory names pruned at any depth.
var DefaultExcludedDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "__pycache__",
	".venv", "venv", ".tox", ".mypy_cache", ".pytest_cache",
	"build", "dist", "target", "out", ".next", "coverage",
}

// DefaultMaxFileSize is the largest file the walker keeps.
const DefaultMaxFileSize = 1 << 20

// Skip reasons reported in Snapshot.SkipReasons.
const (
	SkipExcludedDir         = "excluded_dir"
	SkipExcluded            = "excluded"
	SkipTooLarge            = "too_large"
	SkipUnsupportedLanguage = "unsupported_language"
	SkipSymlink             = "symlink"
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// WorkDir is the parent of snapshot directories; empty means os.TempDir().
	WorkDir string

	// ExcludeGlobs are extra patterns, matched against slash-separated
	// paths relative to the snapshot root.
	ExcludeGlobs []string

	// MaxFileSize skips larger files; <= 0 means DefaultMaxFileSize.
	MaxFileSize int64

	// CloneTimeout bounds the git clone; <= 0 means no limit beyond ctx.
	CloneTimeout time.Duration

	// GitBinary defaults to "git".
	GitBinary string
}

// Fetcher produces repository snapshots with a shallow git clone.
type Fetcher struct {
	cfg      FetcherConfig
	excluded map[string]bool
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. A nil logger uses slog.Default().
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}
	excluded := make(map[string]bool, len(DefaultExcludedDirs))
	for _, d := range DefaultExcludedDirs {
		excluded[d] = true
	}
	return &Fetcher{cfg: cfg, excluded: excluded, logger: logger}
}

// FileInfo represents a source file in a snapshot.
type FileInfo struct {
	Path     string // slash-separated, relative to the snapshot root
	FullPath string
	Size     int64
	Language string
}

// Snapshot is a checked-out repository owned by one job.
type Snapshot struct {
	RepoURL     string
	Root        string
	Files       []FileInfo
	TotalSize   int64
	Languages   map[string]int
	SkipReasons map[string]int

	owned   bool
	cleanMu sync.Mutex
	cleaned bool
}

// Cleanup removes the checkout. It is idempotent and safe on a nil
// snapshot. Snapshots opened from a local directory are never removed.
func (s *Snapshot) Cleanup() error {
	if s == nil {
		return nil
	}
	s.cleanMu.Lock()
	defer s.cleanMu.Unlock()
	if s.cleaned || !s.owned || s.Root == "" {
		s.cleaned = true
		return nil
	}
	s.cleaned = true
	if err := os.RemoveAll(s.Root); err != nil {
		return fmt.Errorf("remove snapshot %s: %w", s.Root, err)
	}
	return nil
}

// FetchError reports a failed fetch. The partial checkout has already been
// removed when it is returned.
type FetchError struct {
	RepoURL string
	Op      string // "validate", "mkdir", "clone", "walk"
	Stderr  string
	Err     error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s: %v", contract.RedactURL(e.RepoURL), e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetch clones repoURL into a fresh directory and lists its source files.
// The caller owns the returned snapshot and must call Cleanup.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string) (*Snapshot, error) {
	cloneURL := contract.NormalizeRepoURL(repoURL)
	if err := validateCloneURL(cloneURL); err != nil {
		return nil, &FetchError{RepoURL: repoURL, Op: "validate", Err: err}
	}

	dir, err := os.MkdirTemp(f.cfg.WorkDir, "depvec-snapshot-*")
	if err != nil {
		return nil, &FetchError{RepoURL: repoURL, Op: "mkdir", Err: err}
	}

	start := time.Now()
	logURL := contract.RedactURL(cloneURL)
	f.logger.Info("repo.clone.start", "url", logURL, "dir", dir)

	if stderr, err := f.clone(ctx, cloneURL, dir); err != nil {
		_ = os.RemoveAll(dir)
		recordFetch("clone_error", time.Since(start))
		return nil, &FetchError{RepoURL: repoURL, Op: "clone", Stderr: stderr, Err: err}
	}
	f.logger.Info("repo.clone.success", "url", logURL, "dir", dir, "duration", time.Since(start))

	snap := &Snapshot{RepoURL: repoURL, Root: dir, owned: true}
	if err := f.populate(snap); err != nil {
		_ = os.RemoveAll(dir)
		recordFetch("walk_error", time.Since(start))
		return nil, &FetchError{RepoURL: repoURL, Op: "walk", Err: err}
	}
	recordFetch("ok", time.Since(start))
	return snap, nil
}

// Open lists the source files of an existing local directory without
// copying it. The snapshot's Cleanup leaves the directory in place.
func (f *Fetcher) Open(dir string) (*Snapshot, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve local path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat local path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path is not a directory: %s", root)
	}
	snap := &Snapshot{RepoURL: "file://" + filepath.ToSlash(root), Root: root}
	if err := f.populate(snap); err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return snap, nil
}

func (f *Fetcher) clone(ctx context.Context, cloneURL, dir string) (string, error) {
	if f.cfg.CloneTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.CloneTimeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	// #nosec G204 - cloneURL passed validateCloneURL and follows "--"
	cmd := exec.CommandContext(ctx, f.cfg.GitBinary, "clone", "--depth", "1", "--quiet", "--", cloneURL, dir)
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w (%v)", ctx.Err(), err)
	}
	return tail(stderr.String(), 512), err
}

func (f *Fetcher) populate(snap *Snapshot) error {
	files, skips, err := f.walk(snap.Root)
	if err != nil {
		return err
	}
	snap.Files = files
	snap.SkipReasons = skips
	snap.Languages = make(map[string]int)
	for _, fi := range files {
		snap.TotalSize += fi.Size
		snap.Languages[fi.Language]++
	}
	f.logger.Info("repo.load.complete",
		"root", snap.Root,
		"files", len(files),
		"total_size", snap.TotalSize,
		"languages", snap.Languages,
		"skipped", skips,
	)
	return nil
}

// walk lists supported source files under root, sorted by path.
func (f *Fetcher) walk(root string) ([]FileInfo, map[string]int, error) {
	var files []FileInfo
	skips := make(map[string]int)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			f.logger.Warn("repo.walk.error", "path", path, "err", err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if f.excluded[d.Name()] || f.matchesExclude(rel) {
				skips[SkipExcludedDir]++
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			skips[SkipSymlink]++
			return nil
		}
		if f.matchesExclude(rel) {
			skips[SkipExcluded]++
			return nil
		}
		lang, ok := LanguageForPath(rel)
		if !ok {
			skips[SkipUnsupportedLanguage]++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > f.cfg.MaxFileSize {
			skips[SkipTooLarge]++
			f.logger.Warn("repo.walk.skip_large_file", "path", rel, "size", info.Size(), "limit", f.cfg.MaxFileSize)
			return nil
		}

		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Size:     info.Size(),
			Language: lang.Name,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slices.SortFunc(files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return files, skips, nil
}

func (f *Fetcher) matchesExclude(rel string) bool {
	for _, pattern := range f.cfg.ExcludeGlobs {
		if matchesGlob(rel, pattern) {
			return true
		}
	}
	return false
}

// validateCloneURL checks a reference right before it is handed to git.
// Beyond the enqueue rules it also accepts scp-style git@host:path and
// absolute file:// references.
func validateCloneURL(ref string) error {
	if ref == "" {
		return errors.New("git URL is empty")
	}
	if gitShellChars.MatchString(ref) {
		return errors.New("git URL contains dangerous characters")
	}
	switch {
	case strings.HasPrefix(ref, "git@"):
		if !scpURLPattern.MatchString(ref) {
			return errors.New("invalid SSH git URL format")
		}
		return nil
	case strings.HasPrefix(ref, "file://"):
		p := strings.TrimPrefix(ref, "file://")
		if !filepath.IsAbs(p) || filepath.Clean(p) != p {
			return errors.New("file URL must be an absolute, clean path")
		}
		return nil
	default:
		return contract.ValidateRepoURL(ref)
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
