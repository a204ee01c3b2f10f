package ml

import (
	"errors"
	"sort"
)

// Classifier is the capability every trained model has: a hard prediction
// for one feature vector.
type Classifier interface {
	Predict(features []float64) (int, error)
}

// ProbabilityEstimator is implemented by models that report per-class
// probabilities, ordered like the model's classes.
type ProbabilityEstimator interface {
	PredictProba(features []float64) ([]float64, error)
}

// DecisionScorer is implemented by models that expose a raw decision score
// for the positive class.
type DecisionScorer interface {
	DecisionFunction(features []float64) (float64, error)
}

// FeatureNamer is implemented by models that recorded the feature order
// they were fit with. An empty result means the order is unknown.
type FeatureNamer interface {
	FeatureNames() []string
}

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrNoProbabilities  = errors.New("model has no class probabilities")
	ErrFeatureMismatch  = errors.New("feature vector length does not match model")
	ErrEmptyTrainingSet = errors.New("features or labels empty")
)

// Fitted holds metadata shared by every trained model artifact.
type Fitted struct {
	FeatureNamesIn []string `json:"feature_names_in,omitempty"`
}

func (f Fitted) FeatureNames() []string {
	return f.FeatureNamesIn
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var classes []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Ints(classes)
	return classes
}
