// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads engine configuration from YAML files and PRAXIS_
// environment variables, with sane local-development defaults.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Memory    MemoryConfig    `koanf:"memory"`
	Store     StoreConfig     `koanf:"store"`
	Providers []Provider      `koanf:"providers"`
	Pool      PoolConfig      `koanf:"pool"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Skills    SkillsConfig    `koanf:"skills"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type MemoryConfig struct {
	Enabled          bool   `koanf:"enabled"`
	Provider         string `koanf:"provider"` // qdrant, inmemory
	QdrantAddr       string `koanf:"qdrant_addr"`
	EmbedderProvider string `koanf:"embedder_provider"` // ollama
	EmbedderBaseURL  string `koanf:"embedder_base_url"`
	EmbedderModel    string `koanf:"embedder_model"`
}

type StoreConfig struct {
	// Path of the SQLite database; ":memory:" keeps state in process.
	Path string `koanf:"path"`
}

// Provider is one capability provider every tenant may connect to.
type Provider struct {
	Name      string   `koanf:"name"`
	Transport string   `koanf:"transport"` // stdio, http
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
}

type PoolConfig struct {
	PositiveTTL    time.Duration `koanf:"positive_ttl"`
	NegativeTTL    time.Duration `koanf:"negative_ttl"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

type ExecutorConfig struct {
	MaxReplans int `koanf:"max_replans"`
}

type SkillsConfig struct {
	// Dir holds the global skill definitions loaded at startup.
	Dir string `koanf:"dir"`
}

type TelemetryConfig struct {
	Exporter     string  `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	OTLPInsecure bool    `koanf:"otlp_insecure"`
	SampleRatio  float64 `koanf:"sample_ratio"` // 0 samples everything
}

// Load reads configuration: defaults, then the YAML file at path (if any),
// then PRAXIS_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("memory.enabled", false)
	k.Set("memory.provider", "qdrant")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.embedder_provider", "ollama")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	k.Set("store.path", "praxis.db")
	k.Set("executor.max_replans", 2)
	k.Set("telemetry.exporter", "stdout")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// PRAXIS_LOG_LEVEL -> log.level
	if err := k.Load(env.Provider("PRAXIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PRAXIS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
