package ml

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForest averages the class probabilities of bagged decision trees.
type RandomForest struct {
	Fitted
	Classes []int           `json:"classes"`
	Trees   []*DecisionTree `json:"trees"`
}

type ForestOptions struct {
	NumTrees    int
	MaxDepth    int
	MaxFeatures int // 0 means sqrt(feature count)
	Seed        int64
}

func DefaultForestOptions() ForestOptions {
	return ForestOptions{NumTrees: 100, MaxDepth: 12, Seed: 42}
}

// TrainForest fits one tree per bootstrap sample of the training set.
func TrainForest(features [][]float64, labels []int, opts ForestOptions) (*RandomForest, error) {
	if err := checkTrainingSet(features, labels); err != nil {
		return nil, err
	}
	if opts.NumTrees <= 0 {
		opts.NumTrees = 100
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 12
	}
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(len(features[0]))))))
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	classes := uniqueLabels(labels)
	forest := &RandomForest{Classes: classes, Trees: make([]*DecisionTree, 0, opts.NumTrees)}

	n := len(features)
	bootX := make([][]float64, n)
	bootY := make([]int, n)
	for t := 0; t < opts.NumTrees; t++ {
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			bootX[i] = features[j]
			bootY[i] = labels[j]
		}
		b := newTreeBuilder(classes, opts.MaxDepth, opts.MaxFeatures, rng)
		forest.Trees = append(forest.Trees, &DecisionTree{
			Classes: classes,
			Nodes:   b.build(bootX, bootY, 0),
		})
	}
	return forest, nil
}

func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrNotTrained
	}
	sum := make([]float64, len(f.Classes))
	for _, tree := range f.Trees {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		if len(proba) != len(sum) {
			return nil, errors.New("tree classes differ from forest classes")
		}
		for i, p := range proba {
			sum[i] += p
		}
	}
	for i := range sum {
		sum[i] /= float64(len(f.Trees))
	}
	return sum, nil
}

func (f *RandomForest) Predict(features []float64) (int, error) {
	proba, err := f.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return f.Classes[argmax(proba)], nil
}

func (f *RandomForest) validate() error {
	if len(f.Trees) == 0 || len(f.Classes) == 0 {
		return ErrNotTrained
	}
	for _, tree := range f.Trees {
		if tree == nil {
			return errors.New("forest contains an empty tree")
		}
		if len(tree.Classes) == 0 {
			tree.Classes = f.Classes
		}
		if err := tree.validate(); err != nil {
			return err
		}
	}
	return nil
}
