// Package config loads hscore settings from ~/.hscore/config.yaml, applies
// HSCORE_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/mchmarny/hscore/pkg/dataset"
	"github.com/mchmarny/hscore/pkg/forest"
)

const (
	AppName   = "hscore"
	EnvPrefix = "HSCORE"

	configFileName  = "config.yaml"
	artifactDirName = "artifact"
	historyFileName = "history.db"
	dirMode         = 0700
	fileMode        = 0600
)

var validate = validator.New()

// Config represents app config object.
type Config struct {
	ArtifactLocation string  `yaml:"artifact" envconfig:"ARTIFACT" validate:"required"`
	HistoryDSN       string  `yaml:"history" envconfig:"HISTORY" validate:"required"`
	DataPath         string  `yaml:"data,omitempty" envconfig:"DATA"`
	TextColumn       string  `yaml:"textColumn" envconfig:"TEXT_COLUMN" validate:"required"`
	RatingColumn     string  `yaml:"ratingColumn" envconfig:"RATING_COLUMN" validate:"required"`
	TestRatio        float64 `yaml:"testRatio" envconfig:"TEST_RATIO" validate:"gte=0,lt=1"`
	Seed             int64   `yaml:"seed" envconfig:"SEED"`
	Trees            int     `yaml:"trees" envconfig:"TREES" validate:"gte=1,lte=10000"`
	MaxDepth         int     `yaml:"maxDepth" envconfig:"MAX_DEPTH" validate:"gte=0"`
	MinSamplesLeaf   int     `yaml:"minSamplesLeaf" envconfig:"MIN_SAMPLES_LEAF" validate:"gte=1"`
	MaxFeatures      float64 `yaml:"maxFeatures" envconfig:"MAX_FEATURES" validate:"gt=0,lte=1"`
	Port             int     `yaml:"port" envconfig:"PORT" validate:"gte=1,lte=65535"`
	LogLevel         string  `yaml:"logLevel" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat        string  `yaml:"logFormat" envconfig:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
}

// Default returns the settings used when no config file exists yet.
// Paths are rooted in dir.
func Default(dir string) *Config {
	return &Config{
		ArtifactLocation: filepath.Join(dir, artifactDirName),
		HistoryDSN:       filepath.Join(dir, historyFileName),
		TextColumn:       dataset.TextColumnDefault,
		RatingColumn:     dataset.RatingColumnDefault,
		TestRatio:        dataset.TestRatioDefault,
		Seed:             dataset.SeedDefault,
		Trees:            forest.TreesDefault,
		MinSamplesLeaf:   forest.MinSamplesLeafDefault,
		MaxFeatures:      forest.MaxFeaturesDefault,
		Port:             8080,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, fmt.Errorf("creating dir %s: %w", dirPath, err)
	}

	path := filepath.Join(dirPath, configFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	c := Default(dirPath)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return c, nil
}

// Load reads the config in dirPath, applies .env and HSCORE_* overrides and
// validates. A missing .env file is not an error.
func Load(dirPath string) (*Config, error) {
	c, err := ReadOrCreate(dirPath)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("applying %s_* environment: %w", EnvPrefix, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("getting user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("creating dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
