package ml

import "testing"

func TestSplitDataset(t *testing.T) {
	features, labels := separable()
	trainX, trainY, testX, testY, err := SplitDataset(features, labels, 0.2, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(testX) != 8 || len(testY) != 8 {
		t.Fatalf("expected 8 test rows, got %d", len(testX))
	}
	if len(trainX) != 32 || len(trainY) != 32 {
		t.Fatalf("expected 32 train rows, got %d", len(trainX))
	}

	_, _, again, _, _ := SplitDataset(features, labels, 0.2, 42)
	for i := range again {
		if again[i][0] != testX[i][0] {
			t.Fatalf("split is not deterministic for a fixed seed")
		}
	}
}

func TestSplitDatasetRejectsBadRatio(t *testing.T) {
	features, labels := separable()
	if _, _, _, _, err := SplitDataset(features, labels, 1.5, 1); err == nil {
		t.Fatal("expected error for ratio outside (0, 1)")
	}
	if _, _, _, _, err := SplitDataset([][]float64{{1}}, []int{1}, 0.2, 1); err == nil {
		t.Fatal("expected error for single row")
	}
}

func TestClassificationReport(t *testing.T) {
	report := ClassificationReport([]int{0, 0, 1, 1}, []int{0, 1, 1, 1})
	if report.Accuracy != 0.75 {
		t.Fatalf("expected accuracy 0.75, got %f", report.Accuracy)
	}
	if len(report.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(report.Classes))
	}
	pos := report.Classes[1]
	if pos.Recall != 1 || pos.Support != 2 {
		t.Fatalf("unexpected positive metrics: %+v", pos)
	}
	if report.String() == "" {
		t.Fatal("expected formatted report")
	}
}

func TestBinaryLabels(t *testing.T) {
	got := BinaryLabels([]bool{true, false, true})
	if got[0] != 1 || got[1] != 0 || got[2] != 1 {
		t.Fatalf("unexpected labels %v", got)
	}
}
