package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/ironsheep/digit-normalizer/internal/imaging"
)

// NumClasses is the number of digit classes a classifier scores.
const NumClasses = 10

// ErrNoModel is returned by serving layers that were started without a
// classifier.
var ErrNoModel = errors.New("model not loaded")

// Classifier scores a normalized digit tensor. Implementations must be safe
// for concurrent use; the tensor is read-only.
type Classifier interface {
	Classify(ctx context.Context, t *imaging.Tensor) (*Prediction, error)
	Info() ModelInfo
}

// HealthChecker is implemented by classifiers that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Prediction is the classifier verdict for one tensor.
type Prediction struct {
	// Digit is the most likely class, 0 through 9.
	Digit int `json:"prediction"`

	// Confidence is the score of Digit.
	Confidence float64 `json:"confidence"`

	// Probabilities maps "0".."9" to each class score.
	Probabilities map[string]float64 `json:"probabilities"`
}

// ModelInfo describes the classifier behind a serving layer.
type ModelInfo struct {
	Backend     string `json:"backend"`
	InputShape  []int  `json:"input_shape"`
	OutputShape []int  `json:"output_shape"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// DefaultInputShape is the tensor shape every classifier consumes.
func DefaultInputShape() []int {
	return []int{1, imaging.CanvasSize, imaging.CanvasSize, 1}
}

// DefaultOutputShape is the score shape every classifier produces.
func DefaultOutputShape() []int {
	return []int{1, NumClasses}
}

// FromDistribution builds a Prediction from a 10-way score vector. The
// highest score wins; the lowest index wins ties.
func FromDistribution(scores []float64) (*Prediction, error) {
	if len(scores) != NumClasses {
		return nil, fmt.Errorf("expected %d scores, got %d", NumClasses, len(scores))
	}

	best := 0
	probs := make(map[string]float64, NumClasses)
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("score %d is not finite", i)
		}
		probs[strconv.Itoa(i)] = s
		if s > scores[best] {
			best = i
		}
	}

	return &Prediction{
		Digit:         best,
		Confidence:    scores[best],
		Probabilities: probs,
	}, nil
}
