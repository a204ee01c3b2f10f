package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"healthguard/artifact"
	"healthguard/logging"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "healthguard",
	Short: "Screening predictions for diabetes, heart disease and cancer",
	Long: "healthguard runs the trained screening models on one health record\n" +
		"(predict) or serves them over HTTP together with form storage and the\n" +
		"Guardian assistant (serve).",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// exitCode ends the process with a status but no further output.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *Config) *zap.Logger {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return zap.NewNop()
	}
	return logger
}

// newArtifactSource reads from S3 when a bucket is configured and from the
// artifact directory otherwise.
func newArtifactSource(cmd *cobra.Command, cfg *Config) (artifact.Source, error) {
	if cfg.Artifacts.S3.Bucket != "" {
		return artifact.NewS3Source(cmd.Context(), cfg.Artifacts.S3.Bucket, cfg.Artifacts.S3.Prefix, cfg.Artifacts.S3.Region)
	}
	return artifact.NewFileSource(cfg.Artifacts.Dir)
}
