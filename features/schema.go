// Package features turns free-form health records into the ordered,
// typed feature rows the trained classifiers expect.
package features

import "fmt"

// Kind is the coercion policy of a schema slot.
type Kind int

const (
	Numeric Kind = iota
	Boolean
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Boolean:
		return "boolean"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Slot is one named, typed position of a Schema.
type Slot struct {
	Name string
	Kind Kind
}

// Schema is the canonical ordered list of input slots. Its order only
// matters for models that do not declare their own feature order.
type Schema []Slot

// DefaultSchema returns the 19 health attributes the reference models are
// trained on.
func DefaultSchema() Schema {
	return Schema{
		{Name: "age", Kind: Numeric},
		{Name: "sex", Kind: Categorical},
		{Name: "heightCm", Kind: Numeric},
		{Name: "weightKg", Kind: Numeric},
		{Name: "bmi", Kind: Numeric},
		{Name: "smokingStatus", Kind: Categorical},
		{Name: "alcoholUse", Kind: Categorical},
		{Name: "activityLevel", Kind: Categorical},
		{Name: "sleepHours", Kind: Numeric},
		{Name: "hasDiabetes", Kind: Boolean},
		{Name: "hasHypertension", Kind: Boolean},
		{Name: "hasHeartDisease", Kind: Boolean},
		{Name: "hasAsthma", Kind: Boolean},
		{Name: "hasKidneyDisease", Kind: Boolean},
		{Name: "hasObesity", Kind: Boolean},
		{Name: "familyDiabetes", Kind: Boolean},
		{Name: "familyHypertension", Kind: Boolean},
		{Name: "familyHeartDisease", Kind: Boolean},
		{Name: "familyCancer", Kind: Boolean},
	}
}

// Names returns the slot names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, slot := range s {
		names[i] = slot.Name
	}
	return names
}

// Lookup finds a slot by exact name.
func (s Schema) Lookup(name string) (Slot, bool) {
	for _, slot := range s {
		if slot.Name == name {
			return slot, true
		}
	}
	return Slot{}, false
}

// OfKind returns the names of all slots with the given kind, in schema order.
func (s Schema) OfKind(kind Kind) []string {
	names := make([]string, 0, len(s))
	for _, slot := range s {
		if slot.Kind == kind {
			names = append(names, slot.Name)
		}
	}
	return names
}

// Default is the value synthesized for a slot that has no input at all
// when aligning without a model-declared feature list.
func (s Slot) Default() Value {
	switch s.Kind {
	case Boolean:
		return BoolValue(false)
	case Categorical:
		return StringValue("")
	default:
		return FloatValue(0)
	}
}
