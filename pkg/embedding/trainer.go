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
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// sigmoid inputs are clipped to +/- maxExp.
	maxExp = 6.0

	// the learning rate never decays below this fraction of its start.
	minLRFraction = 1e-4

	// loss is logged every lossEvery epochs.
	lossEvery = 5
)

// Trainer fits skip-gram embeddings over random walks of a graph.
type Trainer struct {
	cfg    Config
	logger *slog.Logger
}

// NewTrainer creates a trainer. Zero fields of cfg take their defaults; a
// nil logger uses slog.Default().
func NewTrainer(cfg Config, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config { return t.cfg }

// Dim returns the vector size every call to Train produces.
func (t *Trainer) Dim() int { return t.cfg.Dim }

// Train returns one vector per node, in node order.
func (t *Trainer) Train(ctx context.Context, g Graph) ([][]float32, error) {
	start := time.Now()
	n := g.NodeCount()
	fail := func(stage string, err error) ([][]float32, error) {
		recordTrain("error", n, time.Since(start))
		t.logger.Warn("embedding.train.failed", "nodes", n, "stage", stage, "err", err)
		return nil, &TrainError{Stage: stage, Nodes: n, Err: err}
	}

	switch {
	case n == 0:
		return fail("validate", ErrEmptyGraph)
	case t.cfg.MaxNodes > 0 && n > t.cfg.MaxNodes:
		return fail("validate", fmt.Errorf("%w: %d > %d", ErrTooManyNodes, n, t.cfg.MaxNodes))
	}

	rng := rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed^0x9e3779b97f4a7c15))
	w := &walker{adj: buildAdjacency(g), cfg: t.cfg, rng: rng}
	corpus, err := w.walks(ctx)
	if err != nil {
		return fail("walk", err)
	}
	t.logger.Debug("embedding.walks.complete", "nodes", n, "walks", len(corpus), "uniform", t.cfg.uniform())

	m := newModel(n, t.cfg.Dim, rng)
	noise := noiseCDF(n, corpus)
	if err := t.fit(ctx, m, corpus, noise, rng); err != nil {
		return fail("train", err)
	}

	out, err := m.export()
	if err != nil {
		return fail("output", err)
	}
	recordTrain("ok", n, time.Since(start))
	t.logger.Info("embedding.train.complete",
		"nodes", n,
		"dim", t.cfg.Dim,
		"walks", len(corpus),
		"epochs", t.cfg.Epochs,
		"duration", time.Since(start),
	)
	return out, nil
}

// fit runs SGD over the corpus for the configured number of epochs.
func (t *Trainer) fit(ctx context.Context, m *model, corpus [][]int, noise []float64, rng *rand.Rand) error {
	lr0 := t.cfg.LearningRate
	totalWalks := float64(t.cfg.Epochs * len(corpus))
	grad := make([]float64, t.cfg.Dim)
	done := 0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		var loss float64
		var pairs int
		for _, walk := range corpus {
			if err := ctx.Err(); err != nil {
				return err
			}
			lr := lr0 * max(minLRFraction, 1-float64(done)/totalWalks)
			done++

			for i, center := range walk {
				lo, hi := max(0, i-t.cfg.Window), min(len(walk)-1, i+t.cfg.Window)
				for j := lo; j <= hi; j++ {
					if j == i {
						continue
					}
					loss += m.update(center, walk[j], lr, t.cfg.NegativeSamples, noise, rng, grad)
					pairs++
				}
			}
		}

		if epoch%lossEvery == 0 || epoch == t.cfg.Epochs {
			mean := 0.0
			if pairs > 0 {
				mean = loss / float64(pairs)
			}
			if math.IsNaN(mean) || math.IsInf(mean, 0) {
				return fmt.Errorf("epoch %d: %w", epoch, ErrNonFinite)
			}
			if epoch%lossEvery == 0 {
				recordLoss(mean)
				t.logger.Info("embedding.train.epoch", "epoch", epoch, "loss", mean)
			}
		}
	}
	return nil
}

// model holds the input (node) and output (context) vectors.
type model struct {
	in  [][]float64
	out [][]float64
}

func newModel(n, dim int, rng *rand.Rand) *model {
	m := &model{in: make([][]float64, n), out: make([][]float64, n)}
	for i := range n {
		m.in[i] = make([]float64, dim)
		for d := range m.in[i] {
			m.in[i][d] = (rng.Float64() - 0.5) / float64(dim)
		}
		m.out[i] = make([]float64, dim)
	}
	return m
}

// update applies one positive pair plus negatives noise samples and returns
// the pair's loss. grad is scratch of length dim.
func (m *model) update(center, ctxNode int, lr float64, negatives int, noise []float64, rng *rand.Rand, grad []float64) float64 {
	for i := range grad {
		grad[i] = 0
	}
	vec := m.in[center]
	var loss float64

	for k := 0; k <= negatives; k++ {
		target, label := ctxNode, 1.0
		if k > 0 {
			target, label = sampleCDF(noise, rng), 0.0
			if target == ctxNode {
				continue
			}
		}
		f := floats.Dot(vec, m.out[target])
		f = max(-maxExp, min(maxExp, f))
		sig := 1 / (1 + math.Exp(-f))
		if label == 1 {
			loss -= math.Log(sig + 1e-12)
		} else {
			loss -= math.Log(1 - sig + 1e-12)
		}
		g := (label - sig) * lr
		floats.AddScaled(grad, g, m.out[target])
		floats.AddScaled(m.out[target], g, vec)
	}
	floats.Add(vec, grad)
	return loss
}

// export converts the input vectors to float32 and rejects non-finite
// values.
func (m *model) export() ([][]float32, error) {
	out := make([][]float32, len(m.in))
	for i, v := range m.in {
		row := make([]float32, len(v))
		for d, x := range v {
			f := float32(x)
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return nil, fmt.Errorf("node %d: %w", i, ErrNonFinite)
			}
			row[d] = f
		}
		out[i] = row
	}
	return out, nil
}

// noiseCDF builds the cumulative unigram^0.75 distribution of the corpus.
func noiseCDF(n int, corpus [][]int) []float64 {
	counts := make([]float64, n)
	for _, walk := range corpus {
		for _, v := range walk {
			counts[v]++
		}
	}
	for i, c := range counts {
		counts[i] = math.Pow(c, 0.75)
	}
	return floats.CumSum(counts, counts)
}
