package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, expands ${VAR} references
// from the environment, and returns a validated [Config].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})
	cfg, err := LoadFromReader(bytes.NewReader([]byte(expanded)))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.JWTSecret == "" {
		errs = append(errs, errors.New("server.jwt_secret is required"))
	}

	if len(cfg.Credentials.Keys) == 0 {
		errs = append(errs, errors.New("credentials.keys must list at least one key"))
	}
	if cfg.Credentials.MaxPerKey < 0 {
		errs = append(errs, fmt.Errorf("credentials.max_per_key %d must not be negative", cfg.Credentials.MaxPerKey))
	}
	if cfg.Credentials.Shared && cfg.Redis.Addr == "" {
		errs = append(errs, errors.New("credentials.shared requires redis.addr"))
	}

	if cfg.Workers.Backend != "" && !cfg.Workers.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("workers.backend %q is invalid; valid values: docker, jobs", cfg.Workers.Backend))
	}
	switch cfg.Workers.Backend {
	case BackendDocker:
		if cfg.Workers.Image == "" {
			errs = append(errs, errors.New("workers.image is required when backend is docker"))
		}
	case BackendJobs:
		if cfg.Workers.JobsURL == "" {
			errs = append(errs, errors.New("workers.jobs_url is required when backend is jobs"))
		}
	}
	if cfg.Workers.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("workers.max_concurrent %d must not be negative", cfg.Workers.MaxConcurrent))
	}

	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if cfg.TTS.Speed != 0 && (cfg.TTS.Speed < 0.5 || cfg.TTS.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("tts.speed %.2f is out of range [0.5, 2.0]", cfg.TTS.Speed))
	}

	if cfg.Database.DSN == "" {
		slog.Warn("database.dsn is empty; context snapshots and the knowledge graph will not be available")
	}
	if cfg.Database.DSN != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("database.embedding_dimensions is not set; defaulting to 1536")
	}

	if cfg.Agent.MaxReplans < 0 {
		errs = append(errs, fmt.Errorf("agent.max_replans %d must not be negative", cfg.Agent.MaxReplans))
	}
	if cfg.Voice.CompletionGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("voice.completion_grace_seconds %d must not be negative", cfg.Voice.CompletionGraceSeconds))
	}

	return errors.Join(errs...)
}
