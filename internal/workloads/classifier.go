package workloads

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/engine"
)

// ClassifierName is the registry name of the image classifier.
const ClassifierName = "classify"

const imageSize = 64

// Images lists the synthetic images the classifier can be run on.
var Images = []string{"dog", "frog", "flower"}

var classLabels = []string{
	"golden retriever", "beagle", "tabby cat", "tree frog", "bullfrog",
	"daisy", "sunflower", "rose", "goldfish", "tulip",
}

// Prediction is one ranked class from the classifier.
type Prediction struct {
	ClassName   string  `json:"className"`
	Probability float64 `json:"probability"`
}

// Classifier is a small convolutional network run over one synthetic image.
type Classifier struct {
	engine *engine.Context
	seed   int64
	image  string

	mu          sync.Mutex
	weights     weightSet
	input       *engine.Tensor
	conv1       *engine.Tensor
	conv2       *engine.Tensor
	dense       *engine.Tensor
	bias        *engine.Tensor
	initialized bool
}

// NewClassifier builds an uninitialized classifier.
func NewClassifier(e *engine.Context, s Settings) (benchmark.Workload, error) {
	image := s.Image
	if image == "" {
		image = defaultImage
	}
	if !validImage(image) {
		return nil, fmt.Errorf("unknown image %q (available: dog, frog, flower)", image)
	}
	return &Classifier{engine: e, seed: s.Seed, image: image}, nil
}

func validImage(name string) bool {
	for _, img := range Images {
		if img == name {
			return true
		}
	}
	return false
}

func (c *Classifier) Name() string { return ClassifierName }

// Initialized reports whether Initialize has completed.
func (c *Classifier) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Initialize allocates the network weights and the input image.
func (c *Classifier) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights.dispose()
	c.initialized = false

	rng := rand.New(rand.NewSource(c.seed))
	var err error
	if c.conv1, err = c.weights.normal(c.engine, rng, heScale(3*3*3), 3, 3, 3, 8); err != nil {
		return err
	}
	if c.conv2, err = c.weights.normal(c.engine, rng, heScale(3*3*8), 3, 3, 8, 16); err != nil {
		return err
	}
	if c.dense, err = c.weights.normal(c.engine, rng, heScale(16), 16, len(classLabels)); err != nil {
		return err
	}
	if c.bias, err = c.weights.values(c.engine, []int{len(classLabels)}, make([]float32, len(classLabels))); err != nil {
		return err
	}
	if c.input, err = c.weights.values(c.engine, []int{1, imageSize, imageSize, 3}, syntheticImage(c.image)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		c.weights.dispose()
		return err
	}
	c.initialized = true
	return nil
}

// Invoke classifies the image and returns the three most likely classes.
func (c *Classifier) Invoke(context.Context) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, benchmark.ErrNotInitialized
	}

	e := c.engine
	probs, err := e.Tidy(func() (*engine.Tensor, error) {
		x, err := e.Conv2D(c.input, c.conv1, 1, engine.PaddingSame)
		if err != nil {
			return nil, err
		}
		if x, err = e.Relu(x); err != nil {
			return nil, err
		}
		if x, err = e.Conv2D(x, c.conv2, 2, engine.PaddingSame); err != nil {
			return nil, err
		}
		if x, err = e.Relu(x); err != nil {
			return nil, err
		}
		if x, err = e.AvgPool(x); err != nil {
			return nil, err
		}
		if x, err = e.MatMul(x, c.dense); err != nil {
			return nil, err
		}
		if x, err = e.Add(x, c.bias); err != nil {
			return nil, err
		}
		return e.Softmax(x)
	})
	if err != nil {
		return nil, err
	}
	scores := probs.Data()
	probs.Dispose()

	var preds []Prediction
	for _, r := range topK(scores, 3) {
		preds = append(preds, Prediction{ClassName: classLabels[r.index], Probability: float64(r.score)})
	}
	return preds, nil
}

// syntheticImage renders a deterministic 64x64 RGB picture in [0, 1].
func syntheticImage(name string) []float32 {
	px := make([]float32, imageSize*imageSize*3)
	set := func(x, y int, r, g, b float64) {
		i := (y*imageSize + x) * 3
		px[i], px[i+1], px[i+2] = float32(r), float32(g), float32(b)
	}
	center := float64(imageSize) / 2
	for y := 0; y < imageSize; y++ {
		for x := 0; x < imageSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			dist := math.Hypot(dx, dy) / center
			switch name {
			case "dog":
				// brown body on a grey floor
				if dist < 0.6 {
					set(x, y, 0.55, 0.35-0.1*dist, 0.2)
				} else {
					set(x, y, 0.5, 0.5, 0.5)
				}
			case "frog":
				// green body with dark spots
				spot := math.Sin(float64(x)/3)*math.Cos(float64(y)/3) > 0.7
				if spot {
					set(x, y, 0.1, 0.3, 0.1)
				} else {
					set(x, y, 0.2, 0.7-0.3*dist, 0.2)
				}
			default:
				// five petals around a yellow centre
				angle := math.Atan2(dy, dx)
				petal := 0.5 + 0.3*math.Cos(5*angle)
				switch {
				case dist < 0.2:
					set(x, y, 0.95, 0.85, 0.1)
				case dist < petal:
					set(x, y, 0.9, 0.3, 0.6)
				default:
					set(x, y, 0.3, 0.6, 0.3)
				}
			}
		}
	}
	return px
}
