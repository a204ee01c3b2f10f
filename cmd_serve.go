package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"healthguard/artifact"
	"healthguard/db"
	qhttp "healthguard/http"
	"healthguard/inference"
	"healthguard/llm"
	"healthguard/monitoring"
	"healthguard/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions, health forms and the Guardian chat over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize database
	if err := db.InitDB(cfg.Database.Path); err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 2. Artifacts
	src, err := newArtifactSource(cmd, cfg)
	if err != nil {
		return err
	}
	cache, err := artifact.NewCache(artifact.NewLoader(src), cfg.Artifacts.CacheSize, logger.Named("artifact"))
	if err != nil {
		return err
	}
	if err := cache.Preload(ctx); err != nil {
		logger.Warn("artifacts not preloaded, predictions will retry on demand", zap.Error(err))
	}
	if fs, ok := src.(*artifact.FileSource); ok && cfg.Artifacts.Watch {
		if err := cache.Watch(ctx, fs.Dir); err != nil {
			logger.Warn("artifact watch disabled", zap.Error(err))
		}
	}

	// 3. Services
	hub := monitoring.NewWebSocketHub(cfg.Http.AllowedOrigins, logger.Named("monitoring"))
	go hub.Run(ctx)

	storage, err := pipeline.NewCSVStorage(cfg.Dataset.CSVPath)
	if err != nil {
		return err
	}

	deps := qhttp.Deps{
		Predictor: inference.NewPredictor(cache, cfg.alignMode(), logger.Named("inference")),
		Cleaner:   pipeline.NewDataCleaner(logger.Named("pipeline")),
		Storage:   storage,
		Hub:       hub,
		Metrics:   monitoring.NewMetricsCollector(),
		Logger:    logger.Named("http"),
	}
	if guardian := newGuardian(cfg, logger); guardian != nil {
		deps.Guardian = guardian
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	return nil
}

// newGuardian returns nil when no API key is configured; the chat route then
// reports that the client is not configured.
func newGuardian(cfg *Config, logger *zap.Logger) *llm.Guardian {
	if cfg.LLM.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, /api/guardian/chat will fail until provided")
		return nil
	}
	guardian, err := llm.NewGuardian(llm.GuardianConfig{
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		ModerationModel: cfg.LLM.ModerationModel,
		BaseURL:         cfg.LLM.BaseURL,
		MaxTokens:       cfg.LLM.MaxTokens,
		Timeout:         cfg.LLM.Timeout,
	}, logger.Named("llm"))
	if err != nil {
		logger.Warn("guardian disabled", zap.Error(err))
		return nil
	}
	return guardian
}
