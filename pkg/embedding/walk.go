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
	"context"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Graph is the read-only view the trainer needs. Node ids are 0..NodeCount-1.
type Graph interface {
	NodeCount() int
	ForEachEdge(fn func(from, to int))
}

// adjacency is the undirected, deduplicated neighbour list of every node,
// sorted so walks do not depend on edge order.
type adjacency [][]int

func buildAdjacency(g Graph) adjacency {
	n := g.NodeCount()
	sets := make([]map[int]struct{}, n)
	add := func(a, b int) {
		if sets[a] == nil {
			sets[a] = make(map[int]struct{})
		}
		sets[a][b] = struct{}{}
	}
	g.ForEachEdge(func(from, to int) {
		if from < 0 || from >= n || to < 0 || to >= n {
			return
		}
		add(from, to)
		if from != to {
			add(to, from)
		}
	})

	adj := make(adjacency, n)
	for i, set := range sets {
		if len(set) == 0 {
			continue
		}
		nbrs := make([]int, 0, len(set))
		for v := range set {
			nbrs = append(nbrs, v)
		}
		slices.Sort(nbrs)
		adj[i] = nbrs
	}
	return adj
}

func (a adjacency) connected(u, v int) bool {
	_, ok := slices.BinarySearch(a[u], v)
	return ok
}

// walker generates walks with a shared random source.
type walker struct {
	adj     adjacency
	cfg     Config
	rng     *rand.Rand
	weights []float64 // scratch for second-order steps
}

// walks returns WalksPerNode walks from every node. Start order is shuffled
// once per round.
func (w *walker) walks(ctx context.Context) ([][]int, error) {
	n := len(w.adj)
	out := make([][]int, 0, n*w.cfg.WalksPerNode)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for range w.cfg.WalksPerNode {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, start := range order {
			out = append(out, w.walk(start))
		}
	}
	return out, nil
}

func (w *walker) walk(start int) []int {
	path := make([]int, 1, w.cfg.WalkLength)
	path[0] = start
	for len(path) < w.cfg.WalkLength {
		cur := path[len(path)-1]
		nbrs := w.adj[cur]
		if len(nbrs) == 0 {
			// Isolated nodes walk in place.
			path = append(path, cur)
			continue
		}
		if len(path) == 1 || w.cfg.uniform() {
			path = append(path, nbrs[w.rng.IntN(len(nbrs))])
			continue
		}
		path = append(path, w.secondOrderStep(path[len(path)-2], cur))
	}
	return path
}

// secondOrderStep picks the next node with node2vec biases: 1/p to go back
// to prev, 1 for neighbours shared with prev, 1/q for everything else.
func (w *walker) secondOrderStep(prev, cur int) int {
	nbrs := w.adj[cur]
	w.weights = slices.Grow(w.weights[:0], len(nbrs))[:len(nbrs)]
	for i, x := range nbrs {
		switch {
		case x == prev:
			w.weights[i] = 1 / w.cfg.P
		case w.adj.connected(prev, x):
			w.weights[i] = 1
		default:
			w.weights[i] = 1 / w.cfg.Q
		}
	}
	floats.CumSum(w.weights, w.weights)
	return nbrs[sampleCDF(w.weights, w.rng)]
}

// sampleCDF draws an index from a cumulative weight table. Bucket i covers
// [cdf[i-1], cdf[i]).
func sampleCDF(cdf []float64, rng *rand.Rand) int {
	x := rng.Float64() * cdf[len(cdf)-1]
	i := sort.Search(len(cdf), func(i int) bool { return cdf[i] > x })
	return min(i, len(cdf)-1)
}
