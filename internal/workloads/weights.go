package workloads

import (
	"math"
	"math/rand"
	"sort"

	"github.com/mwiater/kernelbench/internal/engine"
)

// weightSet tracks model parameters so they can be freed together.
type weightSet struct {
	tensors []*engine.Tensor
}

// normal allocates a tensor of N(0, scale^2) values drawn from rng.
func (w *weightSet) normal(e *engine.Context, rng *rand.Rand, scale float64, shape ...int) (*engine.Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = float32(rng.NormFloat64() * scale)
	}
	return w.values(e, shape, values)
}

func (w *weightSet) values(e *engine.Context, shape []int, values []float32) (*engine.Tensor, error) {
	t, err := e.FromValues(shape, values)
	if err != nil {
		return nil, err
	}
	w.tensors = append(w.tensors, t)
	return t, nil
}

func (w *weightSet) dispose() {
	for _, t := range w.tensors {
		t.Dispose()
	}
	w.tensors = nil
}

// heScale is the He initialization standard deviation for fanIn inputs.
func heScale(fanIn int) float64 {
	return math.Sqrt(2 / float64(fanIn))
}

type ranked struct {
	index int
	score float32
}

// topK returns the k highest scores, highest first, lower index first on ties.
func topK(scores []float32, k int) []ranked {
	out := make([]ranked, len(scores))
	for i, s := range scores {
		out[i] = ranked{index: i, score: s}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].score > out[b].score })
	if k < len(out) {
		out = out[:k]
	}
	return out
}
