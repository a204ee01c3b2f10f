package ml

import (
	"errors"
	"fmt"
	"strings"
)

type ClassMetrics struct {
	Class     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report summarizes a classifier on held-out data.
type Report struct {
	Classes  []ClassMetrics
	Accuracy float64
	Total    int
}

func Evaluate(model Classifier, features [][]float64, labels []int) (*Report, error) {
	if len(features) == 0 || len(features) != len(labels) {
		return nil, errors.New("evaluation set is empty or misaligned")
	}
	predicted := make([]int, len(labels))
	for i, x := range features {
		p, err := model.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("predict row %d: %w", i, err)
		}
		predicted[i] = p
	}
	return ClassificationReport(labels, predicted), nil
}

func ClassificationReport(truth, predicted []int) *Report {
	classes := uniqueLabels(append(append([]int(nil), truth...), predicted...))
	report := &Report{Total: len(truth)}
	correct := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			correct++
		}
	}
	if len(truth) > 0 {
		report.Accuracy = float64(correct) / float64(len(truth))
	}

	for _, c := range classes {
		var tp, fp, fn, support int
		for i := range truth {
			switch {
			case truth[i] == c && predicted[i] == c:
				tp++
			case truth[i] != c && predicted[i] == c:
				fp++
			case truth[i] == c && predicted[i] != c:
				fn++
			}
			if truth[i] == c {
				support++
			}
		}
		m := ClassMetrics{Class: c, Support: support}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)
	}
	return report
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%12d %10.2f %10.2f %10.2f %10d\n", m.Class, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "%12s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	return b.String()
}
