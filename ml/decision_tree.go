package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a binary gini tree stored as a flat node list. Leaves of
// trees trained by this package carry class counts; older artifacts that
// only hold a class label still predict but report no probabilities.
type DecisionTree struct {
	Fitted
	Classes []int      `json:"classes,omitempty"`
	Nodes   []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Counts     []float64 `json:"counts,omitempty"`
}

// NewDecisionTree returns an untrained tree.
func NewDecisionTree() *DecisionTree {
	return &DecisionTree{}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int, maxDepth int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return err
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}
	b := newTreeBuilder(uniqueLabels(labels), maxDepth, 0, nil)
	dt.Classes = b.classes
	dt.Nodes = b.build(features, labels, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	if len(leaf.Counts) > 0 && len(leaf.Counts) == len(dt.Classes) {
		return dt.Classes[argmax(leaf.Counts)], nil
	}
	return leaf.ClassLabel, nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	if len(leaf.Counts) == 0 || len(leaf.Counts) != len(dt.Classes) {
		return nil, ErrNoProbabilities
	}
	total := 0.0
	for _, c := range leaf.Counts {
		total += c
	}
	if total <= 0 {
		return nil, ErrNoProbabilities
	}
	proba := make([]float64, len(leaf.Counts))
	for i, c := range leaf.Counts {
		proba[i] = c / total
	}
	return proba, nil
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.Nodes) == 0 {
		return TreeNode{}, ErrNotTrained
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, fmt.Errorf("%w: node uses feature %d of %d", ErrFeatureMismatch, node.FeatureIdx, len(features))
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
	return TreeNode{}, errors.New("invalid tree state: cycle")
}

func (dt *DecisionTree) validate() error {
	if len(dt.Nodes) == 0 {
		return ErrNotTrained
	}
	for i, n := range dt.Nodes {
		if n.IsLeaf {
			continue
		}
		if n.LeftChild <= i || n.LeftChild >= len(dt.Nodes) || n.RightChild <= i || n.RightChild >= len(dt.Nodes) {
			return fmt.Errorf("node %d has children out of range", i)
		}
	}
	return nil
}

type treeBuilder struct {
	classes     []int
	classIdx    map[int]int
	maxDepth    int
	maxFeatures int
	rng         *rand.Rand
}

func newTreeBuilder(classes []int, maxDepth, maxFeatures int, rng *rand.Rand) *treeBuilder {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &treeBuilder{classes: classes, classIdx: idx, maxDepth: maxDepth, maxFeatures: maxFeatures, rng: rng}
}

func (b *treeBuilder) build(features [][]float64, labels []int, depth int) []TreeNode {
	counts := b.count(labels)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: b.classes[argmax(counts)],
		IsLeaf:     true,
		Counts:     counts,
	}}
	if depth >= b.maxDepth || isPure(labels) {
		return leaf
	}

	feature, threshold, ok := b.bestSplit(features, labels)
	if !ok {
		return leaf
	}
	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, feature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return leaf
	}

	leftNodes := b.build(leftFeatures, leftLabels, depth+1)
	rightNodes := b.build(rightFeatures, rightLabels, depth+1)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: leaf[0].ClassLabel,
	})
	nodes = append(nodes, shift(leftNodes, 1)...)
	nodes = append(nodes, shift(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// shift rebases subtree child indices onto their position in the parent.
func shift(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += offset
			nodes[i].RightChild += offset
		}
	}
	return nodes
}

func (b *treeBuilder) count(labels []int) []float64 {
	counts := make([]float64, len(b.classes))
	for _, l := range labels {
		counts[b.classIdx[l]]++
	}
	return counts
}

func (b *treeBuilder) candidateFeatures(n int) []int {
	if b.maxFeatures <= 0 || b.maxFeatures >= n || b.rng == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(n)[:b.maxFeatures]
}

type sample struct {
	value float64
	class int
}

// bestSplit sweeps every candidate feature in sorted order and returns the
// midpoint threshold with the lowest weighted gini impurity.
func (b *treeBuilder) bestSplit(features [][]float64, labels []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	total := b.count(labels)
	n := float64(len(labels))

	samples := make([]sample, len(labels))
	for _, featureIdx := range b.candidateFeatures(len(features[0])) {
		for i := range features {
			samples[i] = sample{value: features[i][featureIdx], class: b.classIdx[labels[i]]}
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].value < samples[j].value })

		left := make([]float64, len(b.classes))
		for i := 0; i < len(samples)-1; i++ {
			left[samples[i].class]++
			if samples[i].value == samples[i+1].value {
				continue
			}
			nl := float64(i + 1)
			nr := n - nl
			impurity := (nl/n)*giniCounts(left, nl) + (nr/n)*giniRight(total, left, nr)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = (samples[i].value + samples[i+1].value) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func giniCounts(counts []float64, n float64) float64 {
	impurity := 1.0
	for _, c := range counts {
		p := c / n
		impurity -= p * p
	}
	return impurity
}

func giniRight(total, left []float64, n float64) float64 {
	impurity := 1.0
	for i := range total {
		p := (total[i] - left[i]) / n
		impurity -= p * p
	}
	return impurity
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}

func checkTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, f := range features {
		if len(f) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(f), width)
		}
	}
	return nil
}
