// Package config loads pipeline configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider identifies a text-generation backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// Config holds all configuration values.
type Config struct {
	// LLM provider
	LLMProvider     Provider `yaml:"llm_provider"`
	LLMModel        string   `yaml:"llm_model"`
	AnthropicAPIKey string   `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string   `yaml:"openai_api_key"`
	OllamaHost      string   `yaml:"ollama_host"`

	// Speech-to-text
	STTEngine     string `yaml:"stt_engine"`     // "fasterwhisper" or "openai"
	WhisperModel  string `yaml:"whisper_model"`  // model size for the local engine
	WhisperDevice string `yaml:"whisper_device"` // auto|cpu|cuda

	// Pipeline
	ChunkSize      int `yaml:"chunk_size"`      // max characters per LLM chunk
	LLMConcurrency int `yaml:"llm_concurrency"` // concurrent chunk calls per stage
	Workers        int `yaml:"workers"`         // concurrent jobs

	// Data paths
	InputDir        string `yaml:"input_dir"`
	OutputDir       string `yaml:"output_dir"`
	IntermediateDir string `yaml:"intermediate_dir"`
	ProcessedDir    string `yaml:"processed_dir"`
	FailedDir       string `yaml:"failed_dir"`

	// Server
	ServerAddr string `yaml:"server_addr"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from an optional YAML file, then applies
// environment variable overrides. Path may be empty.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		LLMProvider:     ProviderAnthropic,
		LLMModel:        "claude-sonnet-4-5",
		OllamaHost:      "http://localhost:11434",
		STTEngine:       "fasterwhisper",
		WhisperModel:    "large-v3",
		WhisperDevice:   "auto",
		ChunkSize:       6000,
		LLMConcurrency:  2,
		Workers:         2,
		InputDir:        "data/input",
		OutputDir:       "data/output",
		IntermediateDir: "data/intermediate",
		ProcessedDir:    "data/processed",
		FailedDir:       "data/failed",
		ServerAddr:      ":8686",
		LogFile:         "logs/scribe.log",
		LogLevel:        slog.LevelInfo,
	}
}

func applyEnv(cfg *Config) {
	cfg.LLMProvider = Provider(getEnv("SCRIBE_LLM_PROVIDER", string(cfg.LLMProvider)))
	cfg.LLMModel = getEnv("SCRIBE_LLM_MODEL", cfg.LLMModel)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)

	cfg.STTEngine = getEnv("SCRIBE_STT_ENGINE", cfg.STTEngine)
	cfg.WhisperModel = getEnv("SCRIBE_WHISPER_MODEL", cfg.WhisperModel)
	cfg.WhisperDevice = getEnv("SCRIBE_WHISPER_DEVICE", cfg.WhisperDevice)

	cfg.ChunkSize = getEnvInt("SCRIBE_CHUNK_SIZE", cfg.ChunkSize)
	cfg.LLMConcurrency = getEnvInt("SCRIBE_LLM_CONCURRENCY", cfg.LLMConcurrency)
	cfg.Workers = getEnvInt("SCRIBE_WORKERS", cfg.Workers)

	cfg.InputDir = getEnv("SCRIBE_INPUT_DIR", cfg.InputDir)
	cfg.OutputDir = getEnv("SCRIBE_OUTPUT_DIR", cfg.OutputDir)
	cfg.IntermediateDir = getEnv("SCRIBE_INTERMEDIATE_DIR", cfg.IntermediateDir)
	cfg.ProcessedDir = getEnv("SCRIBE_PROCESSED_DIR", cfg.ProcessedDir)
	cfg.FailedDir = getEnv("SCRIBE_FAILED_DIR", cfg.FailedDir)

	cfg.ServerAddr = getEnv("SCRIBE_SERVER_ADDR", cfg.ServerAddr)
	cfg.LogFile = getEnv("SCRIBE_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = parseLogLevel(getEnv("SCRIBE_LOG_LEVEL", "INFO"))
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLMProvider)
	}
	if c.ChunkSize < 1000 || c.ChunkSize > 20000 {
		return fmt.Errorf("chunk_size must be between 1000 and 20000, got %d", c.ChunkSize)
	}
	return nil
}

// EnsureDirs creates all data directories if they don't exist.
func (c Config) EnsureDirs() error {
	dirs := []string{
		c.InputDir,
		c.OutputDir,
		c.IntermediateDir,
		c.ProcessedDir,
		c.FailedDir,
		filepath.Dir(c.LogFile),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
