package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLMProvider != ProviderAnthropic {
		t.Errorf("LLMProvider = %q, want anthropic", cfg.LLMProvider)
	}
	if cfg.STTEngine != "fasterwhisper" {
		t.Errorf("STTEngine = %q, want fasterwhisper", cfg.STTEngine)
	}
	if cfg.ChunkSize != 6000 {
		t.Errorf("ChunkSize = %d, want 6000", cfg.ChunkSize)
	}
	if cfg.ServerAddr != ":8686" {
		t.Errorf("ServerAddr = %q, want :8686", cfg.ServerAddr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	content := `
llm_provider: ollama
llm_model: llama3
chunk_size: 4000
workers: 5
input_dir: /srv/audio/in
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLMProvider != ProviderOllama {
		t.Errorf("LLMProvider = %q, want ollama", cfg.LLMProvider)
	}
	if cfg.LLMModel != "llama3" {
		t.Errorf("LLMModel = %q, want llama3", cfg.LLMModel)
	}
	if cfg.ChunkSize != 4000 {
		t.Errorf("ChunkSize = %d, want 4000", cfg.ChunkSize)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.InputDir != "/srv/audio/in" {
		t.Errorf("InputDir = %q, want /srv/audio/in", cfg.InputDir)
	}
	// Untouched fields keep their defaults.
	if cfg.OutputDir != "data/output" {
		t.Errorf("OutputDir = %q, want default", cfg.OutputDir)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte("llm_provider: ollama\nchunk_size: 4000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCRIBE_LLM_PROVIDER", "openai")
	t.Setenv("SCRIBE_CHUNK_SIZE", "8000")
	t.Setenv("SCRIBE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLMProvider != ProviderOpenAI {
		t.Errorf("LLMProvider = %q, env must win over file", cfg.LLMProvider)
	}
	if cfg.ChunkSize != 8000 {
		t.Errorf("ChunkSize = %d, want 8000", cfg.ChunkSize)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "unknown provider",
			env:     map[string]string{"SCRIBE_LLM_PROVIDER": "bard"},
			wantErr: true,
		},
		{
			name:    "chunk size too small",
			env:     map[string]string{"SCRIBE_CHUNK_SIZE": "10"},
			wantErr: true,
		},
		{
			name:    "chunk size too large",
			env:     map[string]string{"SCRIBE_CHUNK_SIZE": "50000"},
			wantErr: true,
		},
		{
			name: "valid bounds",
			env:  map[string]string{"SCRIBE_CHUNK_SIZE": "1000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if tt.wantErr && err == nil {
				t.Error("Load() should fail validation")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Load() error = %v", err)
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.InputDir = filepath.Join(base, "in")
	cfg.OutputDir = filepath.Join(base, "out")
	cfg.IntermediateDir = filepath.Join(base, "tmp")
	cfg.ProcessedDir = filepath.Join(base, "done")
	cfg.FailedDir = filepath.Join(base, "failed")
	cfg.LogFile = filepath.Join(base, "logs", "scribe.log")

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}
	for _, d := range []string{"in", "out", "tmp", "done", "failed", "logs"} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s missing after EnsureDirs", d)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
