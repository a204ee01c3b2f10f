package ml

import (
	"errors"
	"fmt"

	"healthguard/features"
)

// DataPreprocessor turns normalized feature rows into model matrices. Fit
// learns one LabelEncoder per categorical slot; Transform applies them the
// same way the inference path does.
type DataPreprocessor struct {
	Schema   features.Schema
	encoders map[string]*LabelEncoder
}

func NewDataPreprocessor(schema features.Schema) *DataPreprocessor {
	return &DataPreprocessor{Schema: schema}
}

func (p *DataPreprocessor) Fit(rows []*features.Row) error {
	if len(rows) == 0 {
		return errors.New("rows is empty")
	}
	p.encoders = make(map[string]*LabelEncoder)
	for _, slot := range p.Schema.OfKind(features.Categorical) {
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			v, ok := row.Get(slot)
			if !ok || v.IsNaN() {
				values = append(values, "")
				continue
			}
			values = append(values, v.String())
		}
		p.encoders[slot] = FitLabelEncoder(values)
	}
	return nil
}

func (p *DataPreprocessor) Transform(rows []*features.Row) ([][]float64, error) {
	if p.encoders == nil {
		return nil, errors.New("encoders not fitted")
	}
	table := AsEncoderTable(p.encoders)
	names := p.Schema.Names()
	vectors := make([][]float64, len(rows))
	for i, row := range rows {
		r := row.Clone()
		features.Encode(r, p.Schema, table)
		features.FillMissing(r, p.Schema)
		selected, err := r.Select(names)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		vec, err := selected.Vector()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Encoders returns the fitted encoders keyed by slot name.
func (p *DataPreprocessor) Encoders() map[string]*LabelEncoder {
	if p.encoders == nil {
		return nil
	}
	out := make(map[string]*LabelEncoder, len(p.encoders))
	for k, v := range p.encoders {
		out[k] = v
	}
	return out
}

// AsEncoderTable adapts decoded label encoders to the features package.
func AsEncoderTable(encoders map[string]*LabelEncoder) features.EncoderTable {
	table := make(features.EncoderTable, len(encoders))
	for name, enc := range encoders {
		table[name] = enc
	}
	return table
}
