package ml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	TypeDecisionTree       = "decision_tree"
	TypeRandomForest       = "random_forest"
	TypeLogisticRegression = "logistic_regression"
	TypeLinearSVC          = "linear_svc"
)

type modelEnvelope struct {
	Type  string          `json:"type"`
	Model json.RawMessage `json:"model"`
}

type validator interface {
	validate() error
}

// DecodeModel reads a model artifact of the form {"type": ..., "model": ...}.
func DecodeModel(r io.Reader) (Classifier, error) {
	var env modelEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}

	var model Classifier
	switch env.Type {
	case TypeDecisionTree:
		model = &DecisionTree{}
	case TypeRandomForest:
		model = &RandomForest{}
	case TypeLogisticRegression:
		model = &LogisticRegression{}
	case TypeLinearSVC:
		model = &LinearSVC{}
	default:
		return nil, fmt.Errorf("unsupported model type %q", env.Type)
	}
	if len(env.Model) == 0 {
		return nil, fmt.Errorf("%s artifact has no model body", env.Type)
	}
	if err := json.Unmarshal(env.Model, model); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	if v, ok := model.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", env.Type, err)
		}
	}
	return model, nil
}

// EncodeModel writes model wrapped in its type envelope.
func EncodeModel(w io.Writer, model Classifier) error {
	var typ string
	switch model.(type) {
	case *DecisionTree:
		typ = TypeDecisionTree
	case *RandomForest:
		typ = TypeRandomForest
	case *LogisticRegression:
		typ = TypeLogisticRegression
	case *LinearSVC:
		typ = TypeLinearSVC
	default:
		return fmt.Errorf("unsupported model %T", model)
	}
	body, err := json.Marshal(model)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(modelEnvelope{Type: typ, Model: body})
}

func LoadModel(path string) (Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeModel(f)
}

func SaveModel(path string, model Classifier) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeModel(f, model); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DecodeEncoders reads the column name to LabelEncoder mapping.
func DecodeEncoders(r io.Reader) (map[string]*LabelEncoder, error) {
	var encoders map[string]*LabelEncoder
	if err := json.NewDecoder(r).Decode(&encoders); err != nil {
		return nil, fmt.Errorf("decode encoders: %w", err)
	}
	if encoders == nil {
		return nil, fmt.Errorf("decode encoders: expected an object")
	}
	for name, enc := range encoders {
		if enc == nil {
			return nil, fmt.Errorf("encoder %q is null", name)
		}
	}
	return encoders, nil
}

func EncodeEncoders(w io.Writer, encoders map[string]*LabelEncoder) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(encoders)
}
