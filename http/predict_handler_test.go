package http

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthguard/features"
	"healthguard/inference"
	"healthguard/monitoring"
	"healthguard/pipeline"
)

type fakePredictor struct {
	result *inference.Result
	err    error
	seen   map[string]any
}

func (f *fakePredictor) Predict(_ context.Context, record map[string]any) (*inference.Result, error) {
	f.seen = record
	return f.result, f.err
}

func sampleResult() *inference.Result {
	return &inference.Result{
		Diabetes:          true,
		DiabetesProba:     81.5,
		HeartDiseaseProba: 12.3,
		CancerProba:       4,
	}
}

func TestHandlePredict(t *testing.T) {
	hub := monitoring.NewWebSocketHub(nil, nil)
	pred := &fakePredictor{result: sampleResult()}
	mux := newTestMux(t, Deps{Predictor: pred, Hub: hub})

	w := do(t, mux, http.MethodPost, "/api/predict", `{"age":61,"sex":"female"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"diabetes": true, "diabetes_proba": 81.5,
		"heartDisease": false, "heartDisease_proba": 12.3,
		"cancer": false, "cancer_proba": 4
	}`, w.Body.String())
	assert.Equal(t, 61.0, pred.seen["age"])
	assert.Equal(t, int64(1), hub.GetStats().Predictions[monitoring.OutcomeOK])
}

func TestHandlePredictEmptyBody(t *testing.T) {
	pred := &fakePredictor{result: sampleResult()}
	mux := newTestMux(t, Deps{Predictor: pred})

	w := do(t, mux, http.MethodPost, "/predict", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, pred.seen)
}

func TestHandlePredictMismatchIsNotAnError(t *testing.T) {
	hub := monitoring.NewWebSocketHub(nil, nil)
	pred := &fakePredictor{err: &features.SchemaError{
		ExpectedCount:      3,
		ExpectedExample:    []string{"Age", "BMI", "Sex"},
		MissingAfterRename: []string{"BMI"},
	}}
	mux := newTestMux(t, Deps{Predictor: pred, Hub: hub})

	w := do(t, mux, http.MethodPost, "/predict", `{"age":40}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, inference.MismatchErrorType, body["error_type"])
	assert.Equal(t, float64(3), body["expected_count"])
	assert.Equal(t, int64(1), hub.GetStats().Predictions[monitoring.OutcomeMismatch])
}

func TestHandlePredictFailure(t *testing.T) {
	pred := &fakePredictor{err: errors.New("could not load models: missing file")}
	mux := newTestMux(t, Deps{Predictor: pred})

	w := do(t, mux, http.MethodPost, "/predict", `{"age":40}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "Prediction failed", body["error"])
	assert.Equal(t, "could not load models: missing file", body["detail"])
}

func TestHandlePredictMalformedJSON(t *testing.T) {
	mux := newTestMux(t, Deps{Predictor: &fakePredictor{result: sampleResult()}})

	w := do(t, mux, http.MethodPost, "/predict", `[1,2,3]`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePredictAndSave(t *testing.T) {
	storage := newStorage(t)
	pred := &fakePredictor{result: sampleResult()}
	mux := newTestMux(t, Deps{Predictor: pred, Storage: storage})

	w := do(t, mux, http.MethodPost, "/predict-and-save",
		`{"userNameForLink":"omar","age":45,"heightCm":180,"weightKg":90,"familyCancer":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "Saved and predicted", body["message"])
	assert.NotEmpty(t, body["id"])
	prediction, ok := body["prediction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 81.5, prediction["diabetes_proba"])

	assert.Equal(t, true, pred.seen["diagCancer"], "predictor sees the cleaned submission")
	assert.True(t, storage.Exists())
}

func TestHandlePredictAndSaveReportsFormID(t *testing.T) {
	pred := &fakePredictor{err: inference.ErrPrediction}
	mux := newTestMux(t, Deps{Predictor: pred})

	w := do(t, mux, http.MethodPost, "/predict-and-save", `{"age":45,"heightCm":180,"weightKg":90}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "Prediction failed after save", body["error"])
	assert.NotEmpty(t, body["id"])
}

func TestHandlePredictAndSaveValidation(t *testing.T) {
	pred := &fakePredictor{result: sampleResult()}
	mux := newTestMux(t, Deps{Predictor: pred})

	w := do(t, mux, http.MethodPost, "/predict-and-save", `{"age":45}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, pred.seen)
}

func TestListPredictions(t *testing.T) {
	mux := newTestMux(t, Deps{Predictor: &fakePredictor{result: sampleResult()}})
	do(t, mux, http.MethodPost, "/predict", `{"age":50}`)

	w := do(t, mux, http.MethodGet, "/api/predictions?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records []map[string]any
	decode(t, w, &records)
	require.Len(t, records, 1)
}

func TestPredictionMetrics(t *testing.T) {
	metrics := monitoring.NewMetricsCollector()
	pred := &fakePredictor{result: sampleResult()}
	mux := newTestMux(t, Deps{Predictor: pred, Cleaner: pipeline.NewDataCleaner(nil), Metrics: metrics})

	w := do(t, mux, http.MethodPost, "/api/predict", `{"age":61}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, mux, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `healthguard_predictions_total{outcome="ok"} 1`)
	assert.Contains(t, w.Body.String(), `healthguard_positive_total{target="diabetes"} 1`)

	w = do(t, mux, http.MethodGet, "/api/monitor/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decode(t, w, &body)
	assert.NotEmpty(t, body["metrics"])
	assert.Contains(t, body, "system")
}

func TestFormRoutesServedWithAndWithoutAPIPrefix(t *testing.T) {
	storage := newStorage(t)
	pred := &fakePredictor{result: sampleResult()}
	mux := newTestMux(t, Deps{Predictor: pred, Storage: storage})

	for _, prefix := range []string{"", "/api"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, prefix+"/predict", `{"age":50}`)
			assert.Equal(t, http.StatusOK, w.Code)

			w = do(t, mux, http.MethodPost, prefix+"/predict-and-save",
				`{"userNameForLink":"lena","age":45,"heightCm":170,"weightKg":65}`)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

			w = do(t, mux, http.MethodPost, prefix+"/healthform/save",
				`{"userNameForLink":"lena","age":45,"heightCm":170,"weightKg":65}`)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

			w = do(t, mux, http.MethodGet, prefix+"/healthform/list/lena", "")
			assert.Equal(t, http.StatusOK, w.Code)

			w = do(t, mux, http.MethodGet, prefix+"/download/user_data.csv", "")
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
