// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the YAML run configuration of a benchmark.
//
// A configuration names the result store, the evaluation options, the
// datasets (as directories in the file loader layout) and the pipelines
// (as registered step types with parameters).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianBench/services/bench"
	"github.com/AleutianAI/AleutianBench/services/bench/telemetry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// validate is shared by all Load calls; validator caches struct metadata.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("evalkind", func(fl validator.FieldLevel) bool {
		_, err := bench.ParseEvaluationKind(fl.Field().String())
		return err == nil
	})
}

// Config is a complete run configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Datasets   []DatasetConfig  `yaml:"datasets" validate:"dive"`
	Pipelines  []PipelineConfig `yaml:"pipelines" validate:"dive"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
	Server     ServerConfig     `yaml:"server"`

	// baseDir resolves relative paths; it is the directory of the loaded
	// file, or the working directory.
	baseDir string
}

// StoreConfig selects and tunes the result store.
type StoreConfig struct {
	Backend        string        `yaml:"backend" validate:"oneof=badger memory"`
	Path           string        `yaml:"path" validate:"required_if=Backend badger"`
	SyncWrites     bool          `yaml:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// EvaluationConfig mirrors engine.Config in YAML form.
type EvaluationConfig struct {
	Kind        string        `yaml:"kind" validate:"evalkind"`
	Overwrite   bool          `yaml:"overwrite"`
	Suffix      string        `yaml:"suffix"`
	Parallelism int           `yaml:"parallelism" validate:"gte=0"`
	PairTimeout time.Duration `yaml:"pair_timeout" validate:"gte=0"`
	Folds       int           `yaml:"folds" validate:"gte=2"`
	Shuffle     bool          `yaml:"shuffle"`
	Seed        uint64        `yaml:"seed"`
	Aggregation string        `yaml:"aggregation" validate:"oneof=mean weighted"`
	Metric      string        `yaml:"metric" validate:"oneof=roc_auc accuracy"`
	CacheSize   int           `yaml:"cache_size" validate:"gte=0"`
}

// DatasetConfig declares one dataset directory.
type DatasetConfig struct {
	ID       string `yaml:"id" validate:"required"`
	Paradigm string `yaml:"paradigm" validate:"required"`
	Path     string `yaml:"path" validate:"required"`

	// Labels overrides the paradigm's label encoding.
	Labels map[string]int `yaml:"labels" validate:"omitempty,min=2"`
}

// PipelineConfig declares one named pipeline.
type PipelineConfig struct {
	Name  string       `yaml:"name" validate:"required"`
	Steps []StepConfig `yaml:"steps" validate:"required,min=1,dive"`
}

// StepConfig declares one step by registered type.
type StepConfig struct {
	Type   string         `yaml:"type" validate:"required"`
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the results API.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// RateLimit caps API requests per second. 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

// DefaultConfig returns a configuration with a durable store under
// ./bench-results and within-session five-fold evaluation.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend:        BackendBadger,
			Path:           "bench-results",
			SyncWrites:     true,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Evaluation: EvaluationConfig{
			Kind:        string(bench.WithinSession),
			Folds:       5,
			Aggregation: "mean",
			Metric:      "roc_auc",
			CacheSize:   64,
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Server:    ServerConfig{Addr: ":8080"},
	}
}

// Load reads, defaults and validates the file at path.
//
// Outputs:
//
//	Config - Defaults overlaid with the file's values.
//	error - The read or parse error, or one wrapping ErrInvalidConfig.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return Config{}, fmt.Errorf("resolve config directory: %w", err)
	}
	cfg.baseDir = abs
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig and validates the result. Relative
// paths resolve against the working directory.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and name uniqueness.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	seen := make(map[string]struct{}, len(c.Datasets))
	for _, d := range c.Datasets {
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate dataset id %q", ErrInvalidConfig, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	seen = make(map[string]struct{}, len(c.Pipelines))
	for _, p := range c.Pipelines {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate pipeline name %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Resolve returns path made absolute against the configuration's
// directory.
func (c Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}
