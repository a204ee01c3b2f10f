package ml

import (
	"fmt"
	"math"
)

// Linear is a binary linear decision function w·x + b. Classes[1] is the
// class predicted for a positive score.
type Linear struct {
	Fitted
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Classes   []int     `json:"classes,omitempty"`
}

func (m *Linear) DecisionFunction(features []float64) (float64, error) {
	if len(m.Coef) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != len(m.Coef) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(features), len(m.Coef))
	}
	score := m.Intercept
	for i, w := range m.Coef {
		score += w * features[i]
	}
	return score, nil
}

func (m *Linear) classes() []int {
	if len(m.Classes) == 2 {
		return m.Classes
	}
	return []int{0, 1}
}

func (m *Linear) predict(features []float64) (int, error) {
	score, err := m.DecisionFunction(features)
	if err != nil {
		return 0, err
	}
	if score > 0 {
		return m.classes()[1], nil
	}
	return m.classes()[0], nil
}

func (m *Linear) validate() error {
	if len(m.Coef) == 0 {
		return ErrNotTrained
	}
	if len(m.Classes) != 0 && len(m.Classes) != 2 {
		return fmt.Errorf("linear model needs 2 classes, has %d", len(m.Classes))
	}
	return nil
}

// LogisticRegression exposes probabilities as well as decision scores.
type LogisticRegression struct {
	Linear
}

func (m *LogisticRegression) Predict(features []float64) (int, error) {
	return m.predict(features)
}

func (m *LogisticRegression) PredictProba(features []float64) ([]float64, error) {
	score, err := m.DecisionFunction(features)
	if err != nil {
		return nil, err
	}
	p := Sigmoid(score)
	return []float64{1 - p, p}, nil
}

// LinearSVC only exposes decision scores; it has no calibrated probabilities.
type LinearSVC struct {
	Linear
}

func (m *LinearSVC) Predict(features []float64) (int, error) {
	return m.predict(features)
}

// Sigmoid maps a decision score onto (0, 1).
func Sigmoid(score float64) float64 {
	return 1 / (1 + math.Exp(-score))
}
