package workloads

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/engine"
)

// GeneratorName is the registry name of the character generator.
const GeneratorName = "generate"

const (
	charset        = " abcdefghijklmnopqrstuvwxyz.,'"
	sequenceLength = 10
	embeddingDim   = 16
	hiddenUnits    = 128
)

// Generator is a character-level recurrent network that extends a seed text one
// character per invocation.
type Generator struct {
	engine   *engine.Context
	seed     int64
	seedText string

	mu          sync.Mutex
	weights     weightSet
	embedding   *engine.Tensor
	inputW      *engine.Tensor
	recurrentW  *engine.Tensor
	hiddenBias  *engine.Tensor
	outputW     *engine.Tensor
	outputBias  *engine.Tensor
	sampler     *rand.Rand
	window      []int
	generated   strings.Builder
	initialized bool
}

// NewGenerator builds an uninitialized generator.
func NewGenerator(e *engine.Context, s Settings) (benchmark.Workload, error) {
	text := s.SeedText
	if strings.TrimSpace(text) == "" {
		text = defaultSeedText
	}
	return &Generator{engine: e, seed: s.Seed, seedText: text}, nil
}

func (g *Generator) Name() string { return GeneratorName }

func (g *Generator) Initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialized
}

// Initialize allocates the network and resets the seed window.
func (g *Generator) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.weights.dispose()
	g.initialized = false

	rng := rand.New(rand.NewSource(g.seed))
	vocab := len(charset)
	var err error
	if g.embedding, err = g.weights.normal(g.engine, rng, 0.1, vocab, embeddingDim); err != nil {
		return err
	}
	if g.inputW, err = g.weights.normal(g.engine, rng, heScale(embeddingDim), embeddingDim, hiddenUnits); err != nil {
		return err
	}
	if g.recurrentW, err = g.weights.normal(g.engine, rng, 1/float64(hiddenUnits), hiddenUnits, hiddenUnits); err != nil {
		return err
	}
	if g.hiddenBias, err = g.weights.values(g.engine, []int{hiddenUnits}, make([]float32, hiddenUnits)); err != nil {
		return err
	}
	if g.outputW, err = g.weights.normal(g.engine, rng, heScale(hiddenUnits), hiddenUnits, vocab); err != nil {
		return err
	}
	if g.outputBias, err = g.weights.values(g.engine, []int{vocab}, make([]float32, vocab)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		g.weights.dispose()
		return err
	}

	g.sampler = rand.New(rand.NewSource(g.seed))
	g.window = encodeWindow(g.seedText)
	g.generated.Reset()
	g.generated.WriteString(g.seedText)
	g.initialized = true
	return nil
}

// Invoke predicts the next character, appends it to the text and slides the
// window forward. It returns the text generated so far.
func (g *Generator) Invoke(context.Context) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return nil, benchmark.ErrNotInitialized
	}

	e := g.engine
	probs, err := e.Tidy(func() (*engine.Tensor, error) {
		emb, err := e.Gather(g.embedding, g.window)
		if err != nil {
			return nil, err
		}
		xw, err := e.MatMul(emb, g.inputW)
		if err != nil {
			return nil, err
		}
		h, err := e.Zeros([]int{1, hiddenUnits})
		if err != nil {
			return nil, err
		}
		for step := 0; step < sequenceLength; step++ {
			xt, err := e.Row(xw, step)
			if err != nil {
				return nil, err
			}
			hh, err := e.MatMul(h, g.recurrentW)
			if err != nil {
				return nil, err
			}
			if hh, err = e.Add(hh, xt); err != nil {
				return nil, err
			}
			if hh, err = e.Add(hh, g.hiddenBias); err != nil {
				return nil, err
			}
			if h, err = e.Tanh(hh); err != nil {
				return nil, err
			}
		}
		logits, err := e.MatMul(h, g.outputW)
		if err != nil {
			return nil, err
		}
		if logits, err = e.Add(logits, g.outputBias); err != nil {
			return nil, err
		}
		return e.Softmax(logits)
	})
	if err != nil {
		return nil, err
	}
	dist := probs.Data()
	probs.Dispose()

	next := sample(dist, g.sampler.Float64())
	g.window = append(g.window[1:], next)
	g.generated.WriteByte(charset[next])
	return g.generated.String(), nil
}

// encodeWindow maps the last sequenceLength characters of text to charset
// indices, left-padding with spaces. Unknown characters become spaces.
func encodeWindow(text string) []int {
	text = strings.ToLower(text)
	window := make([]int, sequenceLength)
	start := len(text) - sequenceLength
	for i := range window {
		pos := start + i
		if pos < 0 {
			continue
		}
		if idx := strings.IndexByte(charset, text[pos]); idx >= 0 {
			window[i] = idx
		}
	}
	return window
}

// sample picks an index from a probability distribution given u in [0, 1).
func sample(dist []float32, u float64) int {
	var acc float64
	for i, p := range dist {
		acc += float64(p)
		if u < acc {
			return i
		}
	}
	return len(dist) - 1
}
