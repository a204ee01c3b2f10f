package inference

import (
	"math"

	"healthguard/ml"
)

// Tier identifies which model capability produced a confidence value.
type Tier int

const (
	TierNone Tier = iota
	TierProbability
	TierDecisionScore
	TierHardPrediction
)

func (t Tier) String() string {
	switch t {
	case TierProbability:
		return "probability"
	case TierDecisionScore:
		return "decision_score"
	case TierHardPrediction:
		return "hard_prediction"
	default:
		return "none"
	}
}

// PositiveClassConfidence returns a value in [0, 1] for x. It never fails;
// a model that cannot answer at all yields 0.
func PositiveClassConfidence(model ml.Classifier, x []float64) float64 {
	conf, _ := ResolveConfidence(model, x)
	return conf
}

// ResolveConfidence tries, in order, class probabilities, the logistic of
// the decision score and the hard prediction. A tier that errors, panics
// or returns NaN falls through to the next one.
func ResolveConfidence(model ml.Classifier, x []float64) (float64, Tier) {
	if est, ok := model.(ml.ProbabilityEstimator); ok {
		if p, ok := attempt(func() (float64, error) { return fromProba(est, x) }); ok {
			return p, TierProbability
		}
	}
	if scorer, ok := model.(ml.DecisionScorer); ok {
		if p, ok := attempt(func() (float64, error) {
			score, err := scorer.DecisionFunction(x)
			return ml.Sigmoid(score), err
		}); ok {
			return p, TierDecisionScore
		}
	}
	if p, ok := attempt(func() (float64, error) {
		label, err := model.Predict(x)
		if label != 0 {
			return 1, err
		}
		return 0, err
	}); ok {
		return p, TierHardPrediction
	}
	return 0, TierNone
}

// fromProba takes p[1] for binary models. With more classes it returns the
// largest probability, which is not a positive-class probability.
func fromProba(est ml.ProbabilityEstimator, x []float64) (float64, error) {
	proba, err := est.PredictProba(x)
	if err != nil {
		return 0, err
	}
	switch {
	case len(proba) == 2:
		return proba[1], nil
	case len(proba) > 2:
		best := proba[0]
		for _, p := range proba[1:] {
			best = math.Max(best, p)
		}
		return best, nil
	default:
		return 0, ml.ErrNoProbabilities
	}
}

func attempt(fn func() (float64, error)) (p float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p, ok = 0, false
		}
	}()
	v, err := fn()
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return math.Min(1, math.Max(0, v)), true
}
