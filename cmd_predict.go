package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"healthguard/artifact"
	"healthguard/inference"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the three conditions for one JSON record read from stdin",
	Long: `Reads one JSON object from stdin and writes exactly one JSON object to
stdout: the six prediction fields, a feature_name_mismatch diagnostic, or
{"error": true, "detail": ...}. The exit status is non-zero only for the
error envelope. Logs go to stderr or the configured log file.`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func runPredict(cmd *cobra.Command, _ []string) error {
	code := predict(cmd, os.Stdin, os.Stdout)
	if code != inference.ExitOK {
		return exitCode(code)
	}
	return nil
}

func predict(cmd *cobra.Command, in io.Reader, out io.Writer) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return emit(out, nil, err)
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	src, err := newArtifactSource(cmd, cfg)
	if err != nil {
		return emit(out, nil, err)
	}
	predictor := inference.NewPredictor(artifact.NewLoader(src), cfg.alignMode(), logger.Named("inference"))

	result, err := predictRecord(cmd.Context(), predictor, in)
	if err != nil {
		logger.Debug("predict failed", zap.Error(err))
	}
	return emit(out, result, err)
}

func predictRecord(ctx context.Context, predictor *inference.Predictor, in io.Reader) (*inference.Result, error) {
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	record, err := inference.DecodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return predictor.Predict(ctx, record)
}

// emit writes the single envelope for a call and returns its exit code.
func emit(out io.Writer, result *inference.Result, err error) int {
	envelope, code := inference.Render(result, err)
	if encErr := json.NewEncoder(out).Encode(envelope); encErr != nil {
		return inference.ExitError
	}
	return code
}
