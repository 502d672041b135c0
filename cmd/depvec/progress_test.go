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

package main

import (
	"bytes"
	"os"
	"testing"
)

func TestNewProgressConfig(t *testing.T) {
	tests := []struct {
		name            string
		globals         GlobalFlags
		expectedNoColor bool
	}{
		{"default flags", GlobalFlags{}, false},
		{"quiet mode", GlobalFlags{Quiet: true}, false},
		{"json mode", GlobalFlags{JSON: true, Quiet: true}, false},
		{"no color propagates", GlobalFlags{NoColor: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewProgressConfig(tt.globals)
			// stderr is not a TTY under go test
			if cfg.Enabled {
				t.Error("NewProgressConfig().Enabled = true, want false")
			}
			if cfg.NoColor != tt.expectedNoColor {
				t.Errorf("NewProgressConfig().NoColor = %v, want %v", cfg.NoColor, tt.expectedNoColor)
			}
			if cfg.Writer != os.Stderr {
				t.Error("NewProgressConfig().Writer should be os.Stderr")
			}
		})
	}
}

func TestNewSpinner(t *testing.T) {
	t.Run("disabled config returns nil", func(t *testing.T) {
		if s := NewSpinner(ProgressConfig{Enabled: false}, "Test"); s != nil {
			t.Error("NewSpinner() should return nil when disabled")
		}
	})

	t.Run("enabled config returns non-nil", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewSpinner(ProgressConfig{Enabled: true, Writer: &buf, NoColor: true}, "Test")
		if s == nil {
			t.Fatal("NewSpinner() should return non-nil when enabled")
		}
		if err := s.Add(1); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		if !bytes.Contains(buf.Bytes(), []byte("Test")) {
			t.Errorf("spinner output %q does not contain the description", buf.String())
		}
		if err := s.Finish(); err != nil {
			t.Errorf("Finish() error = %v", err)
		}
	})
}

func TestStageDescription(t *testing.T) {
	tests := []struct {
		stage    string
		expected string
	}{
		{"fetch", "Fetching repository"},
		{"build", "Building dependency graph"},
		{"train", "Training embeddings"},
		{"publish", "Publishing vectors"},
		{"other", "other"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stageDescription(tt.stage); got != tt.expected {
			t.Errorf("stageDescription(%q) = %q, want %q", tt.stage, got, tt.expected)
		}
	}
}
