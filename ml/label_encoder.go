package ml

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LabelEncoder maps category strings to their index in a sorted, frozen
// class list.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// UnseenLabelError is returned by Transform for values outside the classes.
type UnseenLabelError struct {
	Labels []string
}

func (e *UnseenLabelError) Error() string {
	return fmt.Sprintf("y contains previously unseen labels: %q", e.Labels)
}

// NewLabelEncoder restores an encoder with classes in the given order.
func NewLabelEncoder(classes []string) *LabelEncoder {
	e := &LabelEncoder{classes: append([]string(nil), classes...)}
	e.reindex()
	return e
}

// FitLabelEncoder learns the sorted unique classes of values.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]bool)
	var classes []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	return NewLabelEncoder(classes)
}

func (e *LabelEncoder) reindex() {
	e.index = make(map[string]int, len(e.classes))
	for i, c := range e.classes {
		e.index[c] = i
	}
}

// Classes returns a copy of the fitted classes.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *LabelEncoder) Transform(values []string) ([]int, error) {
	codes := make([]int, len(values))
	var unseen []string
	for i, v := range values {
		code, ok := e.index[v]
		if !ok {
			unseen = append(unseen, v)
			continue
		}
		codes[i] = code
	}
	if len(unseen) > 0 {
		return nil, &UnseenLabelError{Labels: unseen}
	}
	return codes, nil
}

type labelEncoderJSON struct {
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(labelEncoderJSON{Classes: e.classes})
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var doc labelEncoderJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	seen := make(map[string]bool, len(doc.Classes))
	for _, c := range doc.Classes {
		if seen[c] {
			return fmt.Errorf("duplicate class %q", c)
		}
		seen[c] = true
	}
	e.classes = doc.Classes
	e.reindex()
	return nil
}
