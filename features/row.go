package features

import (
	"fmt"
	"math"
	"strconv"
)

// ValueType tags the concrete representation held by a Value.
type ValueType uint8

const (
	TypeFloat ValueType = iota
	TypeBool
	TypeString
	TypeInt
)

// Value is a single cell of a Row.
type Value struct {
	Type  ValueType
	Float float64
	Bool  bool
	Str   string
	Int   int
}

func FloatValue(f float64) Value  { return Value{Type: TypeFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{Type: TypeBool, Bool: b} }
func StringValue(s string) Value  { return Value{Type: TypeString, Str: s} }
func IntValue(i int) Value        { return Value{Type: TypeInt, Int: i} }
func (v Value) IsNaN() bool       { return v.Type == TypeFloat && math.IsNaN(v.Float) }
func (v Value) IsString() bool    { return v.Type == TypeString }

// Numeric returns the value as a model input. Strings have no numeric form.
func (v Value) Numeric() (float64, error) {
	switch v.Type {
	case TypeFloat:
		return v.Float, nil
	case TypeInt:
		return float64(v.Int), nil
	case TypeBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("string value %q is not numeric", v.Str)
	}
}

// String renders the value the way it is matched against encoder classes.
func (v Value) String() string {
	switch v.Type {
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case TypeInt:
		return strconv.Itoa(v.Int)
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Row is a single ordered record of named values.
type Row struct {
	cols []string
	vals map[string]Value
}

func NewRow() *Row {
	return &Row{vals: make(map[string]Value)}
}

// Set stores v under name, appending the column when it is new.
func (r *Row) Set(name string, v Value) {
	if _, ok := r.vals[name]; !ok {
		r.cols = append(r.cols, name)
	}
	r.vals[name] = v
}

func (r *Row) Get(name string) (Value, bool) {
	v, ok := r.vals[name]
	return v, ok
}

func (r *Row) Has(name string) bool {
	_, ok := r.vals[name]
	return ok
}

func (r *Row) Len() int {
	return len(r.cols)
}

// Columns returns a copy of the column names in order.
func (r *Row) Columns() []string {
	return append([]string(nil), r.cols...)
}

func (r *Row) Clone() *Row {
	c := &Row{
		cols: append([]string(nil), r.cols...),
		vals: make(map[string]Value, len(r.vals)),
	}
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// Rename applies all renames at once, keeping column positions. A renamed
// column that lands on an existing name replaces it wherever the existing
// column sits; the renamed column keeps its own position.
func (r *Row) Rename(renames map[string]string) {
	if len(renames) == 0 {
		return
	}
	targets := make(map[string]bool, len(renames))
	for from, to := range renames {
		if _, ok := r.vals[from]; ok {
			targets[to] = true
		}
	}

	cols := make([]string, 0, len(r.cols))
	vals := make(map[string]Value, len(r.vals))
	for _, col := range r.cols {
		to, renamed := renames[col]
		if !renamed {
			if targets[col] {
				continue
			}
			to = col
		}
		if _, dup := vals[to]; dup {
			for i, c := range cols {
				if c == to {
					cols = append(cols[:i], cols[i+1:]...)
					break
				}
			}
		}
		cols = append(cols, to)
		vals[to] = r.vals[col]
	}
	r.cols = cols
	r.vals = vals
}

// Select returns a new row holding exactly names, in that order.
func (r *Row) Select(names []string) (*Row, error) {
	out := &Row{
		cols: make([]string, 0, len(names)),
		vals: make(map[string]Value, len(names)),
	}
	for _, name := range names {
		v, ok := r.vals[name]
		if !ok {
			return nil, fmt.Errorf("column %q not in row", name)
		}
		out.Set(name, v)
	}
	return out, nil
}

// Vector converts the row into the numeric input of a classifier.
func (r *Row) Vector() ([]float64, error) {
	vec := make([]float64, len(r.cols))
	for i, col := range r.cols {
		f, err := r.vals[col].Numeric()
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		vec[i] = f
	}
	return vec, nil
}
