// Package llm wraps the text-generation service behind the two operations
// the pipeline needs: chunk cleanup and chunk structuring.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/raphaelgruber/scribe-go/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// continuationHintLen is how much of the previous raw chunk is fed back as
// context so chunk boundaries read smoothly.
const continuationHintLen = 300

// Client wraps a langchaingo model for the pipeline's two LLM passes.
type Client struct {
	llm       llms.Model
	modelName string
}

// New creates an LLM client based on configuration.
func New(cfg config.Config) (*Client, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Client{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.modelName
}

// generateWithSystem runs one system+user prompt pair.
func (c *Client) generateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := c.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

// CleanChunk runs pass 1 on one transcript chunk: punctuation, filler
// removal, mis-recognition fixes. previous is the tail source for the
// continuation hint, the raw chunk before this one; it may be empty.
func (c *Client) CleanChunk(ctx context.Context, chunkText, previous string) (string, error) {
	return c.generateWithSystem(ctx, cleanupPrompt, userPrompt(chunkText, previous))
}

// StructureChunk runs pass 2 on one cleaned chunk, producing Markdown.
func (c *Client) StructureChunk(ctx context.Context, chunkText, previous string) (string, error) {
	return c.generateWithSystem(ctx, structurePrompt, userPrompt(chunkText, previous))
}

func userPrompt(chunkText, previous string) string {
	hint := continuationHint(previous)
	if hint == "" {
		return chunkText
	}
	return fmt.Sprintf("[Preceding context:]\n%s\n\n[Text to process:]\n%s", hint, chunkText)
}

func continuationHint(previous string) string {
	if previous == "" {
		return ""
	}
	runes := []rune(previous)
	if len(runes) > continuationHintLen {
		runes = runes[len(runes)-continuationHintLen:]
	}
	return strings.TrimSpace(string(runes))
}

// IsTransient classifies provider errors for the retry policy. Rate limits,
// timeouts, connection failures and server-side errors are worth retrying;
// auth and malformed-request failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{
		"api key", "unauthorized", "authentication", "invalid request",
		"bad request", "malformed", "status code: 400", "status code: 401", "status code: 403",
	} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	for _, transient := range []string{
		"rate limit", "status code: 429", "timeout", "timed out",
		"connection", "temporarily", "overloaded",
		"status code: 500", "status code: 502", "status code: 503", "status code: 529",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	// Unknown failures are retried; the attempt budget bounds the damage.
	return true
}
