// Package stt defines the narrow interface the pipeline needs from a
// speech-to-text engine and provides the available backends.
package stt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Segment is one timestamped span of transcribed speech.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// EmitFunc receives each transcribed segment in order together with the
// total audio duration in seconds. Returning an error stops the stream.
type EmitFunc func(seg Segment, totalSec float64) error

// Engine produces a lazy, restartable sequence of transcribed segments.
// Implementations stream segments as they are decoded; they do not buffer
// the whole transcript in memory.
type Engine interface {
	// Transcribe streams segments for audioPath starting at fromSec seconds.
	// Engines without native seek support may decode from the beginning and
	// suppress segments that end at or before fromSec.
	Transcribe(ctx context.Context, audioPath string, fromSec float64, emit EmitFunc) error
}

// audio formats accepted at submission, before any stage runs.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
}

// ErrUnsupportedFormat wraps the rejected extension.
type ErrUnsupportedFormat struct {
	Ext string
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("unsupported audio format: %s", e.Ext)
}

// CheckFormat rejects audio files the engines cannot decode.
func CheckFormat(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return &ErrUnsupportedFormat{Ext: ext}
	}
	return nil
}
