// Package config loads and validates the runtime configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Config is the complete runtime configuration.
type Config struct {
	// Playbook store configuration
	Playbook PlaybookConfig `yaml:"playbook" validate:"required"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding" validate:"required"`

	// Feedback store configuration
	Feedback FeedbackConfig `yaml:"feedback,omitempty" validate:"omitempty"`

	// Chat-turn store configuration
	Chats ChatsConfig `yaml:"chats,omitempty" validate:"omitempty"`

	// Reflection configuration
	Reflection ReflectionConfig `yaml:"reflection,omitempty" validate:"omitempty"`

	// Pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// PlaybookConfig holds the playbook store settings.
type PlaybookConfig struct {
	// Directory for metadata, index and markdown export
	Dir string `yaml:"dir" validate:"required"`

	// Results returned by semantic search
	SearchTopK int `yaml:"search_top_k" validate:"min=1,max=100"`

	// Cosine similarity above which two bullets merge during dedup
	DedupThreshold float64 `yaml:"dedup_threshold" validate:"min=0,max=1"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	// Base URL of the Ollama server
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Embedding model name
	Model string `yaml:"model" validate:"required"`

	// Vector dimensionality the model produces
	Dimensions int `yaml:"dimensions" validate:"min=1"`

	// Request timeout
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// FeedbackConfig holds the feedback record store settings.
type FeedbackConfig struct {
	// Directory for raw feedback JSON files
	Dir string `yaml:"dir,omitempty"`
}

// ChatsConfig holds the chat-turn store settings.
type ChatsConfig struct {
	// SQLite database path; ":memory:" for ephemeral use
	Path string `yaml:"path,omitempty"`
}

// ReflectionConfig selects and configures the reflector.
type ReflectionConfig struct {
	// Provider name (heuristic, anthropic)
	Provider string `yaml:"provider" validate:"omitempty,oneof=heuristic anthropic"`

	// Model ID for the anthropic provider
	ModelID string `yaml:"model_id,omitempty"`

	// API key; falls back to ANTHROPIC_API_KEY
	APIKey string `yaml:"api_key,omitempty"`
}

// PipelineConfig holds the processing pipeline settings.
type PipelineConfig struct {
	// Directory for processing and batch logs
	LogDir string `yaml:"log_dir,omitempty"`

	// Directory for merge audit records
	UpdatesDir string `yaml:"updates_dir,omitempty"`

	// Concurrent workers for batch processing
	Workers int `yaml:"workers" validate:"min=1,max=32"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	// Minimum severity (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// Optional JSON log file path
	File string `yaml:"file,omitempty"`
}

// DefaultConfig returns a configuration with working defaults for a local
// Ollama setup.
func DefaultConfig() *Config {
	return &Config{
		Playbook: PlaybookConfig{
			Dir:            "data/playbook",
			SearchTopK:     5,
			DedupThreshold: 0.9,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    30 * time.Second,
		},
		Feedback: FeedbackConfig{
			Dir: "data/feedback",
		},
		Chats: ChatsConfig{
			Path: "data/chats.db",
		},
		Reflection: ReflectionConfig{
			Provider: "heuristic",
		},
		Pipeline: PipelineConfig{
			LogDir:     "data/logs",
			UpdatesDir: "data/updates",
			Workers:    3,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "reading config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, errors.ValidationFailed, "validating config")
	}

	var messages []string
	for _, e := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
	}
	return errors.WithFields(
		errors.New(errors.ValidationFailed, "invalid configuration: "+strings.Join(messages, "; ")),
		errors.Fields{"violations": len(verrs)},
	)
}
