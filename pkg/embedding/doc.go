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

// Package embedding trains structural vectors for the nodes of a dependency
// graph.
//
// The Trainer generates random walks over the undirected view of the graph
// (uniform walks, or node2vec second-order walks when the return parameter p
// or the in-out parameter q differ from 1) and fits a skip-gram model with
// negative sampling over the walk corpus. Each node receives one vector of
// Config.Dim float32 components; nodes that appear close together on walks
// end up with similar vectors.
//
// # Determinism
//
// All randomness comes from a single PCG source seeded with Config.Seed, and
// training is single-threaded, so the same graph and configuration always
// produce the same vectors.
//
// # Failure
//
// Train either returns one finite vector per node or a *TrainError. There is
// no partial output.
package embedding
