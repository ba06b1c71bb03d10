package stt

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI transcribes through an OpenAI-compatible transcription API. The
// API returns the full segment list in one response, so this backend is not
// lazy; it still honors fromSec by suppressing already-committed segments,
// which keeps resumed runs from duplicating transcript lines.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates the API-backed engine. baseURL may point at a local
// whisper server exposing the OpenAI transcription endpoint.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

// Transcribe implements Engine.
func (o *OpenAI) Transcribe(ctx context.Context, audioPath string, fromSec float64, emit EmitFunc) error {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return fmt.Errorf("transcription request: %w", err)
	}

	totalSec := resp.Duration
	for _, s := range resp.Segments {
		if s.End <= fromSec {
			continue
		}
		seg := Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)}
		if err := emit(seg, totalSec); err != nil {
			return err
		}
	}
	return nil
}
