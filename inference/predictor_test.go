package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthguard/artifact"
	"healthguard/features"
	"healthguard/ml"
)

type staticLoader struct {
	bundle *artifact.Bundle
	err    error
	calls  int
}

func (l *staticLoader) Load(context.Context) (*artifact.Bundle, error) {
	l.calls++
	return l.bundle, l.err
}

// recordingModel predicts positive when the first feature exceeds cut and
// remembers the last vector it saw.
type recordingModel struct {
	ml.Fitted
	cut  float64
	last []float64
}

func (m *recordingModel) Predict(x []float64) (int, error) {
	m.last = x
	if x[0] > m.cut {
		return 1, nil
	}
	return 0, nil
}

type failingModel struct{}

func (failingModel) Predict([]float64) (int, error) { return 0, errors.New("shape mismatch") }

func standardEncoders() map[string]*ml.LabelEncoder {
	return map[string]*ml.LabelEncoder{
		"sex":           ml.NewLabelEncoder([]string{"female", "male"}),
		"smokingStatus": ml.NewLabelEncoder([]string{"current", "former", "never"}),
		"alcoholUse":    ml.NewLabelEncoder([]string{"none", "occasional", "regular"}),
		"activityLevel": ml.NewLabelEncoder([]string{"active", "light", "moderate", "sedentary"}),
	}
}

func bundleOf(diabetes, heart, cancer ml.Classifier) *artifact.Bundle {
	return &artifact.Bundle{
		Encoders: standardEncoders(),
		Models:   map[string]ml.Classifier{"diabetes": diabetes, "heart": heart, "cancer": cancer},
	}
}

func fullRecord() map[string]any {
	return map[string]any{
		"age": 52, "sex": "male", "heightCm": 180, "weightKg": 92, "bmi": 28.4,
		"smokingStatus": "former", "alcoholUse": "occasional", "activityLevel": "light",
		"hasDiabetes": false, "hasHypertension": true, "hasHeartDisease": false,
		"hasAsthma": false, "hasKidneyDisease": false, "hasObesity": 0,
		"familyDiabetes": true, "familyHypertension": false, "familyHeartDisease": false,
		"familyCancer": "yes",
	}
}

func TestPredictEndToEndSixKeys(t *testing.T) {
	names := features.DefaultSchema().Names()
	lr := &ml.LogisticRegression{Linear: ml.Linear{Fitted: ml.Fitted{FeatureNamesIn: names}, Coef: make([]float64, len(names))}}
	lr.Coef[0] = 0.05
	svc := &ml.LinearSVC{Linear: ml.Linear{Fitted: ml.Fitted{FeatureNamesIn: names}, Coef: make([]float64, len(names)), Intercept: -1}}
	hard := &recordingModel{Fitted: ml.Fitted{FeatureNamesIn: names}, cut: 40}

	p := NewPredictor(&staticLoader{bundle: bundleOf(lr, svc, hard)}, features.BestEffort, nil)
	res, err := p.Predict(context.Background(), fullRecord())
	require.NoError(t, err)

	payload, code := Render(res, nil)
	assert.Equal(t, ExitOK, code)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out, 6)
	for _, key := range []string{"diabetes", "heartDisease", "cancer"} {
		assert.IsType(t, true, out[key], key)
		proba, ok := out[key+"_proba"].(float64)
		require.True(t, ok, key)
		assert.GreaterOrEqual(t, proba, 0.0)
		assert.LessOrEqual(t, proba, 100.0)
		assert.InDelta(t, math.Round(proba*10), proba*10, 1e-9, "%s rounded to one decimal", key)
	}

	// age 52 * 0.05 = 2.6 -> sigmoid 93.1%
	assert.True(t, res.Diabetes)
	assert.Equal(t, 93.1, res.DiabetesProba)
	// score -1 -> sigmoid 26.9%, hard prediction negative
	assert.False(t, res.HeartDisease)
	assert.Equal(t, 26.9, res.HeartDiseaseProba)
	// hard-prediction-only model: boolean matches the percentage
	assert.True(t, res.Cancer)
	assert.Equal(t, 100.0, res.CancerProba)

	// categorical slots reach the model encoded, unknown numerics zero-filled
	assert.Equal(t, float64(1), hard.last[5], "smokingStatus former")
	assert.Equal(t, float64(0), hard.last[8], "sleepHours missing")
	assert.Equal(t, float64(1), hard.last[18], "familyCancer yes")
}

func TestPredictEmptyRecordUsesDefaults(t *testing.T) {
	hard := &recordingModel{cut: 0}
	p := NewPredictor(&staticLoader{bundle: bundleOf(hard, hard, hard)}, features.BestEffort, nil)
	res, err := p.Predict(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Diabetes)
	assert.Equal(t, 0.0, res.DiabetesProba)
	require.Len(t, hard.last, 19)
	assert.Equal(t, float64(features.UnseenCode), hard.last[1], "empty sex is unseen")
}

func TestPredictSchemaMismatchDiagnostic(t *testing.T) {
	drifted := &recordingModel{Fitted: ml.Fitted{FeatureNamesIn: []string{"age", "bmi_index", " sleepHours"}}}
	hard := &recordingModel{}
	p := NewPredictor(&staticLoader{bundle: bundleOf(hard, drifted, hard)}, features.BestEffort, nil)

	res, err := p.Predict(context.Background(), fullRecord())
	assert.Nil(t, res)
	var se *features.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"bmi_index"}, se.MissingAfterRename)

	payload, code := Render(res, err)
	assert.Equal(t, ExitOK, code)
	m, ok := payload.(*Mismatch)
	require.True(t, ok)
	assert.Equal(t, "feature_name_mismatch", m.ErrorType)
	assert.Equal(t, 3, m.ExpectedCount)
	assert.Equal(t, map[string]string{"sleepHours": " sleepHours"}, m.RenameMapAttempted)
	assert.Contains(t, m.ExtraInputColumns, "bmi")
}

func TestPredictRenamedCategoricalIsEncoded(t *testing.T) {
	hard := &recordingModel{Fitted: ml.Fitted{FeatureNamesIn: []string{"age", " sex "}}}
	p := NewPredictor(&staticLoader{bundle: bundleOf(hard, hard, hard)}, features.BestEffort, nil)
	_, err := p.Predict(context.Background(), map[string]any{"age": 30, "sex": "female"})
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 0}, hard.last)
}

func TestPredictStrictModeRequiresFeatureNames(t *testing.T) {
	hard := &recordingModel{}
	p := NewPredictor(&staticLoader{bundle: bundleOf(hard, hard, hard)}, features.Strict, nil)
	_, err := p.Predict(context.Background(), fullRecord())
	assert.ErrorIs(t, err, features.ErrNoExpectedFeatures)

	_, code := Render(nil, err)
	assert.Equal(t, ExitError, code)
}

func TestPredictArtifactFailure(t *testing.T) {
	loadErr := &artifact.LoadError{Class: "encoders", Name: "encoders", Err: errors.New("missing")}
	p := NewPredictor(&staticLoader{err: loadErr}, features.BestEffort, nil)
	_, err := p.Predict(context.Background(), fullRecord())
	require.ErrorIs(t, err, artifact.ErrArtifact)

	payload, code := Render(nil, err)
	assert.Equal(t, ExitError, code)
	assert.Equal(t, ErrorEnvelope{Error: true, Detail: "could not load encoders: missing"}, payload)
}

func TestPredictFailureIsFatal(t *testing.T) {
	hard := &recordingModel{}
	p := NewPredictor(&staticLoader{bundle: bundleOf(hard, failingModel{}, hard)}, features.BestEffort, nil)
	res, err := p.Predict(context.Background(), fullRecord())
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrPrediction)
	assert.Equal(t, "prediction failed: shape mismatch", err.Error())
}

func TestPredictTextualCategoricalWithoutEncoderFails(t *testing.T) {
	hard := &recordingModel{}
	b := bundleOf(hard, hard, hard)
	delete(b.Encoders, "sex")
	p := NewPredictor(&staticLoader{bundle: b}, features.BestEffort, nil)
	_, err := p.Predict(context.Background(), fullRecord())
	assert.ErrorIs(t, err, ErrPrediction)
}

func TestRenderGenericError(t *testing.T) {
	payload, code := Render(nil, fmt.Errorf("%w: unexpected end of JSON input", ErrMalformedInput))
	assert.Equal(t, ExitError, code)
	assert.Equal(t, ErrorEnvelope{Error: true, Detail: "invalid json: unexpected end of JSON input"}, payload)
}
