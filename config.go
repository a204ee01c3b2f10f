package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"healthguard/features"
	"healthguard/logging"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	Artifacts struct {
		Dir       string `yaml:"dir"` // empty means next to the binary
		CacheSize int    `yaml:"cache_size"`
		Watch     bool   `yaml:"watch"`
		S3        struct {
			Bucket string `yaml:"bucket"`
			Prefix string `yaml:"prefix"`
			Region string `yaml:"region"`
		} `yaml:"s3"`
	} `yaml:"artifacts"`
	Alignment string `yaml:"alignment"` // best_effort or strict
	Database  struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Dataset struct {
		CSVPath string `yaml:"csv_path"`
	} `yaml:"dataset"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log logging.Config `yaml:"log"`
	LLM struct {
		APIKey          string        `yaml:"api_key"`
		Model           string        `yaml:"model"`
		ModerationModel string        `yaml:"moderation_model"`
		BaseURL         string        `yaml:"base_url"`
		Timeout         time.Duration `yaml:"timeout"`
		MaxTokens       int           `yaml:"max_tokens"`
	} `yaml:"llm"`
}

// loadConfig reads path, or config.yaml when path is empty. A missing
// default file yields the defaults.
func loadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	var config Config
	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Artifacts.CacheSize <= 0 {
		c.Artifacts.CacheSize = 8
	}
	if c.Database.Path == "" {
		c.Database.Path = "healthguard.db"
	}
	if c.Dataset.CSVPath == "" {
		c.Dataset.CSVPath = "user_data.csv"
	}
	if c.Http.Port == 0 {
		c.Http.Port = 5000
	}
	if c.Http.Timeout <= 0 {
		c.Http.Timeout = 30 * time.Second
	}
	if len(c.Http.AllowedOrigins) == 0 {
		c.Http.AllowedOrigins = []string{"*"}
	}
	if c.Http.MaxBodyBytes <= 0 {
		c.Http.MaxBodyBytes = 1 << 20
	}

	defaults := logging.DefaultConfig()
	if c.Log.Level == "" {
		c.Log.Level = defaults.Level
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = defaults.Encoding
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = defaults.MaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = defaults.MaxBackups
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = defaults.MaxAgeDays
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.Model == "" {
		c.LLM.Model = os.Getenv("OPENAI_MODEL")
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
}

func (c *Config) validate() error {
	if _, err := features.ParseAlignMode(c.Alignment); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Http.Port < 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	return nil
}

func (c *Config) alignMode() features.AlignMode {
	mode, _ := features.ParseAlignMode(c.Alignment)
	return mode
}
