package features

import (
	"errors"
	"fmt"
	"strings"
)

// AlignMode selects what happens when a model does not declare the feature
// order it was fit with.
type AlignMode int

const (
	// BestEffort aligns to the canonical schema and synthesizes defaults
	// for absent slots.
	BestEffort AlignMode = iota
	// Strict refuses to align without a model-declared feature list.
	Strict
)

func (m AlignMode) String() string {
	if m == Strict {
		return "strict"
	}
	return "best_effort"
}

// ParseAlignMode accepts "strict" and "best_effort" (the default for "").
func ParseAlignMode(s string) (AlignMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best_effort", "best-effort":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	default:
		return BestEffort, fmt.Errorf("unknown alignment mode %q", s)
	}
}

var (
	ErrNoKnownFeatures    = errors.New("no known feature columns found in input")
	ErrNoExpectedFeatures = errors.New("model does not declare its expected features")
)

const expectedExampleSize = 6

// SchemaError reports a row that cannot be aligned with the feature list a
// model declares. It carries enough to diagnose training/serving drift.
type SchemaError struct {
	ExpectedCount      int
	ExpectedExample    []string
	MissingAfterRename []string
	ExtraInputColumns  []string
	RenameMap          map[string]string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("feature name mismatch: %d expected, missing %v after rename, unused input %v",
		e.ExpectedCount, e.MissingAfterRename, e.ExtraInputColumns)
}

// Reconciler aligns rows to the column order a trained model expects.
type Reconciler struct {
	Schema Schema
	Mode   AlignMode
}

// Reconcile returns a new row aligned to expected, or to the canonical
// schema when expected is empty. The input row is never modified.
func (rc Reconciler) Reconcile(row *Row, expected []string) (*Row, error) {
	if len(expected) > 0 {
		return alignExpected(row.Clone(), expected)
	}
	if rc.Mode == Strict {
		return nil, ErrNoExpectedFeatures
	}
	return rc.alignCanonical(row.Clone())
}

func alignExpected(row *Row, expected []string) (*Row, error) {
	renames := matchColumns(row, expected)
	row.Rename(renames)

	want := make(map[string]bool, len(expected))
	for _, name := range expected {
		want[name] = true
	}
	var missing []string
	for _, name := range expected {
		if !row.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		extra := []string{}
		for _, col := range row.Columns() {
			if !want[col] {
				extra = append(extra, col)
			}
		}
		n := len(expected)
		if n > expectedExampleSize {
			n = expectedExampleSize
		}
		return nil, &SchemaError{
			ExpectedCount:      len(expected),
			ExpectedExample:    append([]string(nil), expected[:n]...),
			MissingAfterRename: missing,
			ExtraInputColumns:  extra,
			RenameMap:          renames,
		}
	}
	return row.Select(expected)
}

func (rc Reconciler) alignCanonical(row *Row) (*Row, error) {
	names := rc.Schema.Names()
	row.Rename(matchColumns(row, names))

	found := false
	for _, name := range names {
		if row.Has(name) {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoKnownFeatures
	}
	for _, slot := range rc.Schema {
		if !row.Has(slot.Name) {
			row.Set(slot.Name, slot.Default())
		}
	}
	return row.Select(names)
}

// matchColumns maps row columns onto targets whose cleaned names agree.
// Exact matches are kept as they are and a column is claimed at most once.
func matchColumns(row *Row, targets []string) map[string]string {
	byClean := make(map[string]string, row.Len())
	for _, col := range row.Columns() {
		byClean[CleanName(col)] = col
	}
	claimed := make(map[string]bool, len(targets))
	for _, target := range targets {
		if row.Has(target) {
			claimed[target] = true
		}
	}
	renames := make(map[string]string)
	for _, target := range targets {
		if row.Has(target) {
			continue
		}
		col, ok := byClean[CleanName(target)]
		if !ok || claimed[col] {
			continue
		}
		claimed[col] = true
		renames[col] = target
	}
	return renames
}

// CleanName strips the stray whitespace and quoting that CSV exports leave
// around header names.
func CleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, "'")
	return strings.TrimSpace(s)
}
