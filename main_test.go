package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthguard/artifact"
	"healthguard/features"
	"healthguard/ml"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := loadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Http.Port)
	assert.Equal(t, 30*time.Second, cfg.Http.Timeout)
	assert.Equal(t, []string{"*"}, cfg.Http.AllowedOrigins)
	assert.Equal(t, "healthguard.db", cfg.Database.Path)
	assert.Equal(t, "user_data.csv", cfg.Dataset.CSVPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, features.BestEffort, cfg.alignMode())
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := writeConfig(t, `
artifacts:
  dir: /opt/models
  cache_size: 16
  watch: true
  s3:
    bucket: screening-models
    prefix: v3
alignment: strict
http:
  port: 8081
  timeout: 5s
  allowed_origins: ["http://localhost:3000"]
log:
  level: debug
  encoding: json
llm:
  api_key: sk-file
  base_url: https://api.deepseek.com/v1
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/models", cfg.Artifacts.Dir)
	assert.Equal(t, 16, cfg.Artifacts.CacheSize)
	assert.True(t, cfg.Artifacts.Watch)
	assert.Equal(t, "screening-models", cfg.Artifacts.S3.Bucket)
	assert.Equal(t, "v3", cfg.Artifacts.S3.Prefix)
	assert.Equal(t, features.Strict, cfg.alignMode())
	assert.Equal(t, 8081, cfg.Http.Port)
	assert.Equal(t, 5*time.Second, cfg.Http.Timeout)
	assert.Equal(t, "json", cfg.Log.Encoding)
	assert.Equal(t, "sk-file", cfg.LLM.APIKey)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.LLM.BaseURL)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit config path must exist")

	_, err = loadConfig(writeConfig(t, "alignment: sideways\n"))
	assert.ErrorContains(t, err, "alignment")

	_, err = loadConfig(writeConfig(t, "http: [1, 2\n"))
	assert.Error(t, err)
}

func writeModels(t *testing.T, dir string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, "encoders.json"))
	require.NoError(t, err)
	require.NoError(t, ml.EncodeEncoders(f, map[string]*ml.LabelEncoder{
		"sex":           ml.NewLabelEncoder([]string{"female", "male", "other"}),
		"smokingStatus": ml.NewLabelEncoder([]string{"current", "former", "never"}),
		"alcoholUse":    ml.NewLabelEncoder([]string{"none", "occasional", "regular"}),
		"activityLevel": ml.NewLabelEncoder([]string{"active", "light", "moderate", "sedentary"}),
	}))
	require.NoError(t, f.Close())

	names := features.DefaultSchema().Names()
	intercepts := map[string]float64{"diabetes": 2, "heart": 0, "cancer": 0}
	for _, target := range artifact.Targets {
		model := &ml.LogisticRegression{Linear: ml.Linear{
			Fitted:    ml.Fitted{FeatureNamesIn: names},
			Coef:      make([]float64, len(names)),
			Intercept: intercepts[target],
		}}
		require.NoError(t, ml.SaveModel(filepath.Join(dir, artifact.ModelName(target)+".json"), model))
	}
}

func runPredictWith(t *testing.T, cfgBody, input string) (map[string]any, string, int) {
	t.Helper()
	configPath = writeConfig(t, cfgBody)
	t.Cleanup(func() { configPath = "" })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	code := predict(cmd, strings.NewReader(input), &out)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &envelope), out.String())
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(out.String()), "\n")+1, "exactly one JSON document")
	return envelope, out.String(), code
}

func TestPredictCommand(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir)

	envelope, raw, code := runPredictWith(t, "artifacts:\n  dir: "+dir+"\nlog:\n  level: error\n",
		`{"age": 58, "sex": "female", "heightCm": 165, "weightKg": 80, "smokingStatus": "never"}`)
	assert.Equal(t, 0, code)
	assert.Equal(t, true, envelope["diabetes"])
	assert.Equal(t, 88.1, envelope["diabetes_proba"])
	assert.Equal(t, false, envelope["heartDisease"])
	assert.Equal(t, 50.0, envelope["heartDisease_proba"])
	assert.Equal(t, 50.0, envelope["cancer_proba"])
	assert.Less(t, strings.Index(raw, `"diabetes"`), strings.Index(raw, `"cancer_proba"`))
}

func TestPredictCommandErrors(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir)
	cfg := "artifacts:\n  dir: " + dir + "\nlog:\n  level: error\n"

	envelope, _, code := runPredictWith(t, cfg, "   ")
	assert.Equal(t, 1, code)
	assert.Equal(t, true, envelope["error"])
	assert.Equal(t, "no input provided", envelope["detail"])

	envelope, _, code = runPredictWith(t, cfg, "{not json")
	assert.Equal(t, 1, code)
	assert.Contains(t, envelope["detail"], "invalid json")

	empty := t.TempDir()
	envelope, _, code = runPredictWith(t, "artifacts:\n  dir: "+empty+"\nlog:\n  level: error\n", `{"age": 40}`)
	assert.Equal(t, 1, code)
	assert.Contains(t, envelope["detail"], "could not load encoders")
}
