package inference

import (
	"errors"

	"healthguard/features"
)

// Result is the success envelope. Field order is the wire order.
type Result struct {
	Diabetes          bool    `json:"diabetes"`
	DiabetesProba     float64 `json:"diabetes_proba"`
	HeartDisease      bool    `json:"heartDisease"`
	HeartDiseaseProba float64 `json:"heartDisease_proba"`
	Cancer            bool    `json:"cancer"`
	CancerProba       float64 `json:"cancer_proba"`
}

func newResult(outcomes map[string]Outcome) *Result {
	d, h, c := outcomes["diabetes"], outcomes["heartDisease"], outcomes["cancer"]
	return &Result{
		Diabetes:          d.Positive,
		DiabetesProba:     d.Proba,
		HeartDisease:      h.Positive,
		HeartDiseaseProba: h.Proba,
		Cancer:            c.Positive,
		CancerProba:       c.Proba,
	}
}

const (
	MismatchErrorType = "feature_name_mismatch"
	MismatchNote      = "Model expects a different set of feature names. Check CSV headers/models."
)

// Mismatch is the diagnostic envelope for a schema error. It is reported on
// the success channel.
type Mismatch struct {
	ErrorType          string            `json:"error_type"`
	Note               string            `json:"note"`
	ExpectedCount      int               `json:"expected_count"`
	ExpectedExample    []string          `json:"expected_example"`
	MissingAfterRename []string          `json:"missing_after_rename"`
	ExtraInputColumns  []string          `json:"extra_input_columns"`
	RenameMapAttempted map[string]string `json:"rename_map_attempted"`
}

func NewMismatch(se *features.SchemaError) *Mismatch {
	renames := se.RenameMap
	if renames == nil {
		renames = map[string]string{}
	}
	extra := se.ExtraInputColumns
	if extra == nil {
		extra = []string{}
	}
	return &Mismatch{
		ErrorType:          MismatchErrorType,
		Note:               MismatchNote,
		ExpectedCount:      se.ExpectedCount,
		ExpectedExample:    se.ExpectedExample,
		MissingAfterRename: se.MissingAfterRename,
		ExtraInputColumns:  extra,
		RenameMapAttempted: renames,
	}
}

// ErrorEnvelope is the generic failure envelope.
type ErrorEnvelope struct {
	Error  bool   `json:"error"`
	Detail string `json:"detail"`
}

// Exit codes of the predict command.
const (
	ExitOK    = 0
	ExitError = 1
)

// Render picks the one envelope a call reports and the process exit code
// that goes with it.
func Render(result *Result, err error) (any, int) {
	if err == nil {
		if result == nil {
			return ErrorEnvelope{Error: true, Detail: "prediction failed: empty result"}, ExitError
		}
		return result, ExitOK
	}
	var se *features.SchemaError
	if errors.As(err, &se) {
		return NewMismatch(se), ExitOK
	}
	return ErrorEnvelope{Error: true, Detail: err.Error()}, ExitError
}
