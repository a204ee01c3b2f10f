package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"healthguard/artifact"
	"healthguard/features"
	"healthguard/ml"
)

// ErrPrediction marks a failed hard prediction. No partial result is
// reported when any target fails.
var ErrPrediction = errors.New("prediction failed")

// BundleLoader supplies the artifacts for one call. *artifact.Loader loads
// them fresh; *artifact.Cache shares them across calls.
type BundleLoader interface {
	Load(ctx context.Context) (*artifact.Bundle, error)
}

// Target links an artifact target name to its keys in the result.
type Target struct {
	Artifact string
	Key      string
}

var Targets = []Target{
	{Artifact: "diabetes", Key: "diabetes"},
	{Artifact: "heart", Key: "heartDisease"},
	{Artifact: "cancer", Key: "cancer"},
}

// Outcome is one target's prediction.
type Outcome struct {
	Positive bool
	Proba    float64 // percent, one decimal
	Tier     Tier
}

type Predictor struct {
	loader     BundleLoader
	schema     features.Schema
	reconciler features.Reconciler
	logger     *zap.Logger
}

func NewPredictor(loader BundleLoader, mode features.AlignMode, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema := features.DefaultSchema()
	return &Predictor{
		loader:     loader,
		schema:     schema,
		reconciler: features.Reconciler{Schema: schema, Mode: mode},
		logger:     logger,
	}
}

// Predict runs all three targets for record. A *features.SchemaError is
// returned when a model's expected features cannot be matched.
func (p *Predictor) Predict(ctx context.Context, record map[string]any) (*Result, error) {
	row := features.Normalize(record, p.schema)

	bundle, err := p.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	encoders := ml.AsEncoderTable(bundle.Encoders)

	outcomes := make(map[string]Outcome, len(Targets))
	for _, target := range Targets {
		model, ok := bundle.Models[target.Artifact]
		if !ok {
			return nil, fmt.Errorf("%w: no model for %s", artifact.ErrArtifact, target.Artifact)
		}
		out, err := p.predictOne(row, model, encoders)
		if err != nil {
			p.logger.Debug("target failed", zap.String("target", target.Artifact), zap.Error(err))
			return nil, err
		}
		p.logger.Debug("target predicted",
			zap.String("target", target.Artifact),
			zap.Bool("positive", out.Positive),
			zap.Float64("proba", out.Proba),
			zap.Stringer("tier", out.Tier))
		outcomes[target.Key] = out
	}
	return newResult(outcomes), nil
}

func (p *Predictor) predictOne(row *features.Row, model ml.Classifier, encoders features.EncoderTable) (Outcome, error) {
	var expected []string
	if namer, ok := model.(ml.FeatureNamer); ok {
		expected = namer.FeatureNames()
	}

	aligned, err := p.reconciler.Reconcile(row, expected)
	if err != nil {
		return Outcome{}, err
	}
	features.Encode(aligned, p.schema, encoders)
	features.FillMissing(aligned, p.schema)

	order := expected
	if len(order) == 0 {
		order = p.schema.Names()
	}
	aligned, err = aligned.Select(order)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	x, err := aligned.Vector()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrPrediction, err)
	}

	label, err := safePredict(model, x)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	conf, tier := ResolveConfidence(model, x)
	return Outcome{Positive: label != 0, Proba: Percent(conf), Tier: tier}, nil
}

func safePredict(model ml.Classifier, x []float64) (label int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return model.Predict(x)
}

// Percent scales a confidence to 0-100 rounded to one decimal. Rounding is
// decided on the exact value of conf*100 with ties to even, so 0.0025 gives
// 0.2.
func Percent(conf float64) float64 {
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		return 0
	}
	p, _ := strconv.ParseFloat(strconv.FormatFloat(conf*100, 'f', 1, 64), 64)
	return p
}
