package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"healthguard/artifact"
	"healthguard/db"
	"healthguard/features"
	"healthguard/inference"
	"healthguard/pipeline"
)

func writeDataset(t *testing.T, path string, n int) {
	t.Helper()
	storage, err := pipeline.NewCSVStorage(path)
	require.NoError(t, err)
	sexes := []string{"male", "female"}
	smoking := []string{"never", "former", "current"}
	for i := 0; i < n; i++ {
		older := i%2 == 0
		age := 30 + i%10
		if older {
			age = 65 + i%10
		}
		require.NoError(t, storage.Append(pipeline.Submission{
			"age":              age,
			"sex":              sexes[i%2],
			"heightCm":         170,
			"weightKg":         70 + i%15,
			"bmi":              24.2,
			"smokingStatus":    smoking[i%3],
			"alcoholUse":       "none",
			"activityLevel":    "light",
			"sleepHours":       7,
			"hasHypertension":  older,
			"familyCancer":     i%4 == 0,
			"diagDiabetes":     older,
			"diagHeartDisease": older && i%3 == 0,
			"diagCancer":       i%4 == 0,
		}))
	}
}

func TestTrainWritesLoadableArtifacts(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "user_data.csv")
	writeDataset(t, csvPath, 40)

	out := filepath.Join(dir, "models")
	dbPath := filepath.Join(dir, "train.db")
	var report bytes.Buffer
	err := train(options{
		CSVPath:   csvPath,
		OutDir:    out,
		DBPath:    dbPath,
		NumTrees:  5,
		MaxDepth:  4,
		TestRatio: 0.2,
		Seed:      42,
	}, &report, zap.NewNop())
	require.NoError(t, err)

	for _, target := range artifact.Targets {
		assert.Contains(t, report.String(), "=== "+target+" ===")
	}
	assert.Contains(t, report.String(), "accuracy")

	bundle, err := artifact.NewLoader(&artifact.FileSource{Dir: out}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"female", "male"}, bundle.Encoders["sex"].Classes())

	predictor := inference.NewPredictor(artifact.NewLoader(&artifact.FileSource{Dir: out}), features.Strict, nil)
	result, err := predictor.Predict(context.Background(), map[string]any{
		"age": 70, "sex": "female", "heightCm": 165, "weightKg": 75, "smokingStatus": "never",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.DiabetesProba, 0.0)
	assert.LessOrEqual(t, result.DiabetesProba, 100.0)

	require.NoError(t, db.InitDB(dbPath))
	defer db.Close()
	logs, err := db.LoadTrainingLog()
	require.NoError(t, err)
	assert.Len(t, logs, len(artifact.Targets))
}

func TestTrainMissingLabelColumn(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, writeFile(csvPath, "age,sex\n40,male\n50,female\n"))

	err := train(options{CSVPath: csvPath, OutDir: dir, NumTrees: 2, TestRatio: 0.2, Seed: 1}, &bytes.Buffer{}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "diagDiabetes"), err.Error())
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}
