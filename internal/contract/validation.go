// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const (
	// MaxRepoURLBytes bounds the length of an accepted repository reference.
	MaxRepoURLBytes = 2048

	// AdminTokenMinBytes is the shortest admin secret the dispatcher accepts
	// from configuration.
	AdminTokenMinBytes = 16
)

// ErrInvalidRepoURL is wrapped by every ValidateRepoURL failure.
var ErrInvalidRepoURL = errors.New("invalid repository url")

// shellMetaPattern matches characters that have meaning to a shell or that
// never appear in a clonable repository reference.
var shellMetaPattern = regexp.MustCompile("[;&|$`\\\\<>'\"(){}*?!~]")

// enqueueSchemes are the schemes accepted from API callers. file:// is only
// accepted by the fetcher itself.
var enqueueSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ssh":   true,
	"git":   true,
}

// ValidateRepoURL performs the syntactic check applied to repository
// references before they are queued. The reference must look like
// [scheme://]host/path with a dotted host (or localhost), at least one path
// segment, no shell metacharacters, no whitespace or control characters, no
// "." or ".." segments and no embedded password.
func ValidateRepoURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRepoURL)
	}
	if len(raw) > MaxRepoURLBytes {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRepoURL, MaxRepoURLBytes)
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidRepoURL)
		}
	}
	if shellMetaPattern.MatchString(raw) {
		return fmt.Errorf("%w: contains shell metacharacters", ErrInvalidRepoURL)
	}
	if strings.Contains(strings.ToLower(raw), "%2e%2e") {
		return fmt.Errorf("%w: contains path traversal", ErrInvalidRepoURL)
	}

	candidate := raw
	if scheme, _, ok := strings.Cut(raw, "://"); ok {
		if !enqueueSchemes[strings.ToLower(scheme)] {
			return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRepoURL, scheme)
		}
	} else {
		candidate = "https://" + raw
	}
	return checkParsed(candidate)
}

func checkParsed(candidate string) error {
	parsed, err := url.Parse(candidate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidRepoURL)
	}
	if host != "localhost" && !strings.Contains(host, ".") {
		return fmt.Errorf("%w: host %q is not a domain", ErrInvalidRepoURL, host)
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			return fmt.Errorf("%w: embedded password", ErrInvalidRepoURL)
		}
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("%w: query or fragment not allowed", ErrInvalidRepoURL)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return fmt.Errorf("%w: missing repository path", ErrInvalidRepoURL)
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: empty path segment", ErrInvalidRepoURL)
		case ".", "..":
			return fmt.Errorf("%w: contains path traversal", ErrInvalidRepoURL)
		}
	}
	return nil
}

// NormalizeRepoURL returns raw with https:// prepended when it carries no
// scheme and is not an scp-style git@host:path reference.
func NormalizeRepoURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") || strings.HasPrefix(raw, "git@") {
		return raw
	}
	return "https://" + raw
}

// RedactURL strips query parameters and user info so a reference can be
// logged. Unparseable input is returned unchanged.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	parsed.RawQuery = ""
	if parsed.User != nil {
		parsed.User = url.User("***")
	}
	return parsed.String()
}
