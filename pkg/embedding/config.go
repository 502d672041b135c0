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

package embedding

import (
	"errors"
	"fmt"
)

// Config controls walk generation and skip-gram training.
type Config struct {
	Dim             int     // vector size
	WalkLength      int     // nodes per walk, start included
	Window          int     // context nodes on each side of the center
	WalksPerNode    int     // walks started from every node
	Epochs          int     // passes over the walk corpus
	LearningRate    float64 // starting SGD step, decayed linearly
	NegativeSamples int     // noise nodes per positive pair
	P               float64 // return parameter
	Q               float64 // in-out parameter
	Seed            uint64
	MaxNodes        int // larger graphs are rejected; <= 0 disables the check
}

// DefaultConfig returns the standard training parameters.
func DefaultConfig() Config {
	return Config{
		Dim:             64,
		WalkLength:      20,
		Window:          10,
		WalksPerNode:    10,
		Epochs:          10,
		LearningRate:    0.01,
		NegativeSamples: 1,
		P:               1,
		Q:               1,
		Seed:            42,
		MaxNodes:        200_000,
	}
}

// withDefaults fills zero values from DefaultConfig. Seed 0 and MaxNodes 0
// are legitimate settings and stay as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Dim <= 0 {
		c.Dim = d.Dim
	}
	if c.WalkLength <= 0 {
		c.WalkLength = d.WalkLength
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.WalksPerNode <= 0 {
		c.WalksPerNode = d.WalksPerNode
	}
	if c.Epochs <= 0 {
		c.Epochs = d.Epochs
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.NegativeSamples <= 0 {
		c.NegativeSamples = d.NegativeSamples
	}
	if c.P <= 0 {
		c.P = d.P
	}
	if c.Q <= 0 {
		c.Q = d.Q
	}
	return c
}

// uniform reports whether walks reduce to first-order uniform walks.
func (c Config) uniform() bool { return c.P == 1 && c.Q == 1 }

var (
	// ErrEmptyGraph is returned for a graph without nodes.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrTooManyNodes is returned when the graph exceeds Config.MaxNodes.
	ErrTooManyNodes = errors.New("graph exceeds node limit")

	// ErrNonFinite is returned when training diverged.
	ErrNonFinite = errors.New("non-finite value in embeddings")
)

// TrainError reports a failed training run.
type TrainError struct {
	Stage string // "validate", "walk", "train" or "output"
	Nodes int
	Err   error
}

func (e *TrainError) Error() string {
	return fmt.Sprintf("train embeddings (%d nodes) at %s: %v", e.Nodes, e.Stage, e.Err)
}

func (e *TrainError) Unwrap() error { return e.Err }
