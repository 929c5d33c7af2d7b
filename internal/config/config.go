// Package config loads the run configuration for the ci-repair orchestrator:
// strategy-loop thresholds, sandbox/provider wiring, and collaborator
// selection. Grounded on the teacher's LoadRunConfigFile
// (internal/attractor/engine/config.go) — strict decode (DisallowUnknownFields
// for JSON, KnownFields(true) for YAML), a single top-level document check,
// and defaults applied after decode rather than as struct field defaults.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StrategyLoopConfig holds optional strategy-loop threshold overrides read
// from the run configuration, without this package importing loopguard
// (avoiding a config->loopguard->ports cycle). cmd/ci-repair decodes these
// fields but does not apply them: every Coordinator the Supervisor builds
// uses loopguard.DefaultStrategyLoopConfig().
type StrategyLoopConfig struct {
	MinIterationsBeforeHalt *int     `json:"min_iterations_before_halt,omitempty" yaml:"min_iterations_before_halt,omitempty"`
	DivergingWindow         *int     `json:"diverging_window,omitempty" yaml:"diverging_window,omitempty"`
	HighComplexityThreshold *int     `json:"high_complexity_threshold,omitempty" yaml:"high_complexity_threshold,omitempty"`
}

// SandboxConfig selects and parameterizes the Sandbox implementation.
type SandboxConfig struct {
	BaseDir        string `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`
	CommandTimeoutMS int  `json:"command_timeout_ms,omitempty" yaml:"command_timeout_ms,omitempty"`
}

// LanguageModelConfig selects the ProviderCaller an adapters.RetryingLLM
// should wrap.
type LanguageModelConfig struct {
	Provider   string `json:"provider" yaml:"provider"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKeyEnv  string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
}

// PersistenceConfig selects between the JSONL and sqlite persistence
// adapters.
type PersistenceConfig struct {
	Backend string `json:"backend" yaml:"backend"` // "jsonl" or "sqlite"
	Path    string `json:"path" yaml:"path"`
}

// LogSourceConfig parameterizes adapters.HTTPLogSource.
type LogSourceConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	TokenEnv  string `json:"token_env,omitempty" yaml:"token_env,omitempty"`
}

// RunConfig is the top-level run-configuration document.
type RunConfig struct {
	Version int `json:"version" yaml:"version"`

	Concurrency   int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	Sandbox       SandboxConfig       `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	LanguageModel LanguageModelConfig `json:"language_model" yaml:"language_model"`
	Persistence   PersistenceConfig   `json:"persistence,omitempty" yaml:"persistence,omitempty"`
	Metrics       PersistenceConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	LogSource     LogSourceConfig     `json:"log_source,omitempty" yaml:"log_source,omitempty"`
	StrategyLoop  StrategyLoopConfig  `json:"strategy_loop,omitempty" yaml:"strategy_loop,omitempty"`
}

const (
	defaultConcurrency   = 4
	defaultMaxIterations = 5
)

// Load reads and strictly decodes path (YAML by default, JSON when the
// extension is .json), applies defaults, and validates the result.
func Load(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg RunConfig
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := decodeJSONStrict(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else {
		if err := decodeYAMLStrict(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *RunConfig) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple top-level JSON values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *RunConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple YAML documents are not allowed")
		}
		return err
	}
	return nil
}

func applyDefaults(cfg *RunConfig) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = "jsonl"
	}
	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = "jsonl"
	}
}

func validate(cfg *RunConfig) error {
	if cfg.Version == 0 {
		return fmt.Errorf("version is required")
	}
	if cfg.LanguageModel.Provider == "" {
		return fmt.Errorf("language_model.provider is required")
	}
	switch cfg.Persistence.Backend {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("persistence.backend must be jsonl or sqlite, got %q", cfg.Persistence.Backend)
	}
	return nil
}
