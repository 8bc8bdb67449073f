// Package predict guesses the current activity from a recent sample window.
// It is a heuristic demo, not a trained classifier.
package predict

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/relabs-tech/motionsense/internal/imu"
)

// Labels the predictor can emit, in override order.
var Labels = []string{"standing", "sitting", "walking", "running"}

const (
	// DefaultMinSamples is the smallest window that yields a prediction.
	DefaultMinSamples = 6
	// DefaultOverrideProbability is how often the label is replaced at random.
	DefaultOverrideProbability = 0.1
)

// Prediction is a label with a confidence percentage.
type Prediction struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
}

// RandSource supplies randomness. *rand.Rand satisfies it. The Predictor
// serializes calls, so the source need not be safe for concurrent use.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// band maps |z| below limit to a label and a confidence of base + spread*r.
type band struct {
	limit  float64
	label  string
	base   float64
	spread float64
}

var bands = []band{
	{limit: 2, label: "sitting", base: 70, spread: 20},
	{limit: 4, label: "standing", base: 65, spread: 25},
	{limit: 7, label: "walking", base: 75, spread: 20},
	{limit: math.Inf(1), label: "running", base: 80, spread: 15},
}

// Option customizes a Predictor.
type Option func(*Predictor)

// WithRand replaces the random source.
func WithRand(r RandSource) Option {
	return func(p *Predictor) { p.rand = r }
}

// WithMinSamples sets the smallest window that yields a prediction.
func WithMinSamples(n int) Option {
	return func(p *Predictor) {
		if n > 0 {
			p.minSamples = n
		}
	}
}

// WithOverrideProbability sets how often the label is randomized. Zero
// disables the override.
func WithOverrideProbability(prob float64) Option {
	return func(p *Predictor) { p.overrideProb = prob }
}

// Predictor is stateless apart from its random source. It is safe for
// concurrent use.
type Predictor struct {
	minSamples   int
	overrideProb float64

	mu   sync.Mutex
	rand RandSource
}

// New creates a Predictor with the default thresholds.
func New(opts ...Option) *Predictor {
	p := &Predictor{
		rand:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		minSamples:   DefaultMinSamples,
		overrideProb: DefaultOverrideProbability,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict classifies the latest sample of window by its vertical
// acceleration. It reports false when the window is too short.
func (p *Predictor) Predict(window []imu.Sample) (Prediction, bool) {
	if len(window) < p.minSamples {
		return Prediction{}, false
	}
	z := math.Abs(window[len(window)-1].Acceleration.Z)

	p.mu.Lock()
	defer p.mu.Unlock()

	var pred Prediction
	for _, b := range bands {
		if z < b.limit {
			pred = Prediction{Label: b.label, Confidence: confidence(b.base, b.spread, p.rand.Float64())}
			break
		}
	}

	if p.overrideProb > 0 && p.rand.Float64() < p.overrideProb {
		pred = Prediction{
			Label:      Labels[p.rand.IntN(len(Labels))],
			Confidence: confidence(40, 30, p.rand.Float64()),
		}
	}
	return pred, true
}

func confidence(base, spread, r float64) int {
	return int(math.Round(base + spread*r))
}
