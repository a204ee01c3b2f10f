package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Normalize builds one schema-shaped row from an untrusted record. Keys that
// are not schema slots are ignored. It never fails: values that cannot be
// coerced degrade to the slot's sentinel.
func Normalize(record map[string]any, schema Schema) *Row {
	row := NewRow()
	for _, slot := range schema {
		raw, present := record[slot.Name]
		if !present {
			raw = nil
		}
		switch slot.Kind {
		case Boolean:
			row.Set(slot.Name, BoolValue(truthy(raw)))
		case Numeric:
			row.Set(slot.Name, FloatValue(toFloat(raw)))
		default:
			row.Set(slot.Name, StringValue(toText(raw)))
		}
	}
	return row
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case string:
		// Form and CSV payloads carry booleans as text.
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func toFloat(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if s := strings.TrimSpace(v); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	}
	return math.NaN()
}

func toText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
