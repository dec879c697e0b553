package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"benchml/internal/spec"
)

const SupportedSchema = "v1"

var ErrInvalidPipeline = errors.New("invalid pipeline file")

// LoadPipelineSpec parses a pipeline YAML, validates schema_version and
// fills bench defaults.
func LoadPipelineSpec(path string) (spec.File, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	if len(cfg.Modules) == 0 {
		return cfg, fmt.Errorf("%s: no modules: %w", path, ErrInvalidPipeline)
	}
	for i, m := range cfg.Modules {
		if m.Tag == "" {
			return cfg, fmt.Errorf("%s: module %d has no tag: %w", path, i, ErrInvalidPipeline)
		}
		for j, t := range m.Transforms {
			if t.Tag == "" || t.Kind == "" {
				return cfg, fmt.Errorf("%s: module %s: transform %d needs tag and kind: %w", path, m.Tag, j, ErrInvalidPipeline)
			}
		}
	}
	if cfg.Bench.Output == "" {
		cfg.Bench.Output = "y"
	}
	if cfg.Bench.TestFraction == 0 {
		cfg.Bench.TestFraction = 0.25
	}
	if cfg.Bench.TestFraction < 0 || cfg.Bench.TestFraction >= 1 {
		return cfg, fmt.Errorf("%s: test_fraction %g outside [0,1): %w", path, cfg.Bench.TestFraction, ErrInvalidPipeline)
	}
	return cfg, nil
}
