// Package config loads runtime configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the assistant reads at startup.
type Config struct {
	AnthropicModel string `yaml:"anthropic_model"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDim       int    `yaml:"embed_dim"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MaxResults   int `yaml:"max_results"`
	MaxHistory   int `yaml:"max_history"`

	DBPath       string `yaml:"db_path"`
	DocsDir      string `yaml:"docs_dir"`
	SessionsPath string `yaml:"sessions_path"`
	Addr         string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AnthropicModel: "claude-3-7-sonnet-latest",
		EmbedModel:     "nomic-embed-text",
		EmbedDim:       384,
		ChunkSize:      800,
		ChunkOverlap:   100,
		MaxResults:     5,
		MaxHistory:     2,
		DBPath:         "coursechat.db",
		DocsDir:        "docs",
		SessionsPath:   "sessions.json",
		Addr:           ":8000",
	}
}

// Load reads path (missing file falls back to defaults), then applies
// RAG_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	overrideString(&cfg.AnthropicModel, "RAG_ANTHROPIC_MODEL")
	overrideString(&cfg.EmbedModel, "RAG_EMBED_MODEL")
	overrideInt(&cfg.EmbedDim, "RAG_EMBED_DIM")
	overrideString(&cfg.DBPath, "RAG_DB_PATH")
	overrideString(&cfg.DocsDir, "RAG_DOCS_DIR")
	overrideString(&cfg.SessionsPath, "RAG_SESSIONS_PATH")
	overrideString(&cfg.Addr, "RAG_ADDR")

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.EmbedDim <= 0 {
		return fmt.Errorf("config: embed_dim must be positive, got %d", c.EmbedDim)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: chunk_overlap %d must be smaller than chunk_size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
