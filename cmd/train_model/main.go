package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"healthguard/artifact"
	"healthguard/db"
	"healthguard/features"
	"healthguard/logging"
	"healthguard/ml"
	"healthguard/pipeline"
)

type options struct {
	CSVPath   string
	OutDir    string
	DBPath    string
	NumTrees  int
	MaxDepth  int
	TestRatio float64
	Seed      int64
}

// labelColumns maps each model target to its label column in the dataset.
var labelColumns = map[string]string{
	"diabetes": "diagDiabetes",
	"heart":    "diagHeartDisease",
	"cancer":   "diagCancer",
}

func main() {
	var opts options
	flag.StringVar(&opts.CSVPath, "csv", "user_data.csv", "training dataset")
	flag.StringVar(&opts.OutDir, "out", ".", "artifact output directory")
	flag.StringVar(&opts.DBPath, "db", "", "sqlite database for the training log (optional)")
	flag.IntVar(&opts.NumTrees, "trees", 100, "trees per forest")
	flag.IntVar(&opts.MaxDepth, "max_depth", 12, "max tree depth")
	flag.Float64Var(&opts.TestRatio, "test_ratio", 0.2, "held-out ratio")
	flag.Int64Var(&opts.Seed, "seed", 42, "random seed")
	level := flag.String("log_level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *level, Encoding: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := train(opts, os.Stdout, logger); err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
}

func train(opts options, out io.Writer, logger *zap.Logger) error {
	dataset, err := pipeline.LoadDataset(opts.CSVPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	logger.Info("dataset loaded", zap.String("path", opts.CSVPath), zap.Int("rows", len(dataset.Records)))

	schema := features.DefaultSchema()
	rows := dataset.Rows(schema)
	preprocessor := ml.NewDataPreprocessor(schema)
	if err := preprocessor.Fit(rows); err != nil {
		return err
	}
	X, err := preprocessor.Transform(rows)
	if err != nil {
		return err
	}

	if opts.DBPath != "" {
		if err := db.InitDB(opts.DBPath); err != nil {
			return err
		}
		defer db.Close()
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, target := range artifact.Targets {
		values, err := dataset.Labels(labelColumns[target])
		if err != nil {
			return err
		}
		y := ml.BinaryLabels(values)

		trainX, trainY, testX, testY, err := ml.SplitDataset(X, y, opts.TestRatio, opts.Seed)
		if err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}
		forest, err := ml.TrainForest(trainX, trainY, ml.ForestOptions{
			NumTrees: opts.NumTrees,
			MaxDepth: opts.MaxDepth,
			Seed:     opts.Seed,
		})
		if err != nil {
			return fmt.Errorf("train %s: %w", target, err)
		}
		forest.FeatureNamesIn = schema.Names()

		report, err := ml.Evaluate(forest, testX, testY)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", target, err)
		}
		fmt.Fprintf(out, "\n=== %s ===\n%s", target, report)

		name := artifact.ModelName(target)
		if err := ml.SaveModel(filepath.Join(opts.OutDir, name+".json"), forest); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}

		if opts.DBPath != "" {
			positive := positiveClass(report)
			if err := db.SaveTrainingLog(db.TrainingLog{
				ModelName:  name,
				Accuracy:   report.Accuracy,
				Precision:  positive.Precision,
				Recall:     positive.Recall,
				TrainedAt:  time.Now().UTC(),
				DataPoints: len(trainX),
			}); err != nil {
				logger.Warn("save training log", zap.String("model", name), zap.Error(err))
			}
		}
	}

	f, err := os.Create(filepath.Join(opts.OutDir, artifact.Encoders+".json"))
	if err != nil {
		return err
	}
	if err := ml.EncodeEncoders(f, preprocessor.Encoders()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nmodels and encoders saved to %s\n", opts.OutDir)
	return nil
}

func positiveClass(r *ml.Report) ml.ClassMetrics {
	for _, m := range r.Classes {
		if m.Class == 1 {
			return m
		}
	}
	return ml.ClassMetrics{Class: 1}
}
