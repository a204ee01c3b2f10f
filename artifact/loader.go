package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"healthguard/ml"
)

// ErrArtifact matches every artifact load failure.
var ErrArtifact = errors.New("artifact load failed")

// LoadError names the artifact class that failed to load.
type LoadError struct {
	Class string // "encoders" or "models"
	Name  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load %s: %v", e.Class, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrArtifact }

func loadError(name string, err error) error {
	class := "models"
	if name == Encoders {
		class = "encoders"
	}
	return &LoadError{Class: class, Name: name, Err: err}
}

// Bundle holds everything one prediction needs. Models are keyed by target.
type Bundle struct {
	Encoders map[string]*ml.LabelEncoder
	Models   map[string]ml.Classifier
}

// Loader decodes artifacts from a Source on every call.
type Loader struct {
	Source Source
}

func NewLoader(src Source) *Loader {
	return &Loader{Source: src}
}

func (l *Loader) Load(ctx context.Context) (*Bundle, error) {
	encoders, err := l.LoadEncoders(ctx)
	if err != nil {
		return nil, err
	}
	b := &Bundle{Encoders: encoders, Models: make(map[string]ml.Classifier, len(Targets))}
	for _, target := range Targets {
		model, err := l.LoadModel(ctx, target)
		if err != nil {
			return nil, err
		}
		b.Models[target] = model
	}
	return b, nil
}

func (l *Loader) LoadEncoders(ctx context.Context) (map[string]*ml.LabelEncoder, error) {
	v, err := l.decode(ctx, Encoders)
	if err != nil {
		return nil, err
	}
	return v.(map[string]*ml.LabelEncoder), nil
}

func (l *Loader) LoadModel(ctx context.Context, target string) (ml.Classifier, error) {
	v, err := l.decode(ctx, ModelName(target))
	if err != nil {
		return nil, err
	}
	return v.(ml.Classifier), nil
}

// decode returns map[string]*ml.LabelEncoder for the encoders artifact and
// ml.Classifier for model artifacts.
func (l *Loader) decode(ctx context.Context, name string) (any, error) {
	rc, err := l.Source.Open(ctx, name)
	if err != nil {
		return nil, loadError(name, err)
	}
	defer rc.Close()

	if name == Encoders {
		encoders, err := ml.DecodeEncoders(rc)
		if err != nil {
			return nil, loadError(name, err)
		}
		return encoders, nil
	}
	if !strings.HasPrefix(name, modelPrefix) {
		return nil, loadError(name, fmt.Errorf("unknown artifact %q", name))
	}
	model, err := ml.DecodeModel(rc)
	if err != nil {
		return nil, loadError(name, fmt.Errorf("%s: %w", name, err))
	}
	return model, nil
}
