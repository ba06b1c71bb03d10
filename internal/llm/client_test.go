package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/scribe-go/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		LLMProvider:     config.ProviderAnthropic,
		LLMModel:        "claude-sonnet-4-5",
		AnthropicAPIKey: "test-key",
		OpenAIAPIKey:    "test-key",
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancellation", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit", errors.New("API error: rate limit exceeded"), true},
		{"429", errors.New("unexpected response, status code: 429"), true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true},
		{"server error", errors.New("status code: 503"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"bad api key", errors.New("invalid api key provided"), false},
		{"unauthorized", errors.New("status code: 401, unauthorized"), false},
		{"bad request", errors.New("status code: 400, bad request"), false},
		{"unknown errors retried", errors.New("something odd happened"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestUserPrompt(t *testing.T) {
	if got := userPrompt("some text", ""); got != "some text" {
		t.Errorf("first chunk should carry no context header, got %q", got)
	}

	got := userPrompt("current chunk", "previous chunk tail")
	if !strings.Contains(got, "previous chunk tail") || !strings.Contains(got, "current chunk") {
		t.Errorf("prompt missing context or chunk: %q", got)
	}
	if !strings.Contains(got, "[Preceding context:]") {
		t.Errorf("prompt missing context marker: %q", got)
	}
}

func TestContinuationHint_Truncation(t *testing.T) {
	long := strings.Repeat("x", 1000) + " ending words"
	hint := continuationHint(long)

	if len([]rune(hint)) > continuationHintLen {
		t.Errorf("hint length = %d runes, want at most %d", len([]rune(hint)), continuationHintLen)
	}
	if !strings.HasSuffix(hint, "ending words") {
		t.Errorf("hint must keep the tail of the previous chunk, got %q", hint)
	}
	if continuationHint("") != "" {
		t.Error("empty previous chunk produces no hint")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.AnthropicAPIKey = ""
	if _, err := New(cfg); err == nil {
		t.Error("New() without an Anthropic key should fail")
	}

	cfg = testConfig()
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = ""
	if _, err := New(cfg); err == nil {
		t.Error("New() without an OpenAI key should fail")
	}

	cfg = testConfig()
	cfg.LLMProvider = "mystery"
	if _, err := New(cfg); err == nil {
		t.Error("New() with an unknown provider should fail")
	}
}

func TestNew_AnthropicModelName(t *testing.T) {
	cfg := testConfig()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Model() != cfg.LLMModel {
		t.Errorf("Model() = %q, want %q", client.Model(), cfg.LLMModel)
	}
}
