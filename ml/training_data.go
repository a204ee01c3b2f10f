package ml

import (
	"errors"
	"math"
	"math/rand"
)

// SplitDataset shuffles the rows with seed and holds out testRatio of them
// for evaluation.
func SplitDataset(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int, err error) {
	if err := checkTrainingSet(features, labels); err != nil {
		return nil, nil, nil, nil, err
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, nil, nil, errors.New("testRatio must be between 0 and 1")
	}

	n := len(features)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	testSize := int(math.Ceil(float64(n) * testRatio))
	if testSize >= n {
		testSize = n - 1
	}
	if testSize == 0 {
		return nil, nil, nil, nil, errors.New("dataset too small to split")
	}

	for i, idx := range perm {
		if i < testSize {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		} else {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY, nil
}

// BinaryLabels turns truthy label values into 1 and everything else into 0.
func BinaryLabels(values []bool) []int {
	labels := make([]int, len(values))
	for i, v := range values {
		if v {
			labels[i] = 1
		}
	}
	return labels
}
