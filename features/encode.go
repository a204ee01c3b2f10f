package features

// UnseenCode marks a categorical value outside an encoder's training classes.
const UnseenCode = -1

// Encoder is a label encoder fitted at training time. Its class list is
// frozen; Transform rejects values it has never seen.
type Encoder interface {
	Classes() []string
	Transform(values []string) ([]int, error)
}

// EncoderTable maps categorical slot names to their fitted encoders.
type EncoderTable map[string]Encoder

// Encode replaces the categorical columns of row with encoder codes, in
// place. Columns without an encoder stay textual. Unseen values become
// UnseenCode instead of failing.
func Encode(row *Row, schema Schema, encoders EncoderTable) {
	for _, slot := range schema.OfKind(Categorical) {
		col := columnFor(row, slot)
		v, ok := row.Get(col)
		if !ok {
			v = StringValue("")
		}
		text := v.String()
		if v.IsNaN() {
			text = ""
		}

		enc := encoders[slot]
		if enc == nil {
			row.Set(col, StringValue(text))
			continue
		}
		row.Set(col, IntValue(encodeOne(enc, text)))
	}
}

// columnFor finds the row column holding slot, which may carry the
// model's spelling of the name after reconciliation.
func columnFor(row *Row, slot string) string {
	if row.Has(slot) {
		return slot
	}
	for _, col := range row.Columns() {
		if CleanName(col) == slot {
			return col
		}
	}
	return slot
}

func encodeOne(enc Encoder, value string) int {
	if codes, err := enc.Transform([]string{value}); err == nil && len(codes) == 1 {
		return codes[0]
	}
	for i, class := range enc.Classes() {
		if class == value {
			return i
		}
	}
	return UnseenCode
}

// FillMissing replaces NaN numeric slots with 0 so models never receive NaN.
func FillMissing(row *Row, schema Schema) {
	for _, slot := range schema.OfKind(Numeric) {
		col := columnFor(row, slot)
		if v, ok := row.Get(col); ok && v.IsNaN() {
			row.Set(col, FloatValue(0))
		}
	}
}
