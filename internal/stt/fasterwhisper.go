package stt

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

//go:embed assets/faster_whisper.py
var helperFS embed.FS

// FasterWhisper runs faster-whisper through a Python helper subprocess. The
// helper emits one JSON object per line: an info record first, then one
// record per segment, so segments arrive lazily and the caller can persist
// each before the next is decoded. The --start flag resumes mid-file.
type FasterWhisper struct {
	Model  string
	Device string // auto|cpu|cuda
	Python string // helper interpreter, default "python3"
	Logger *slog.Logger
}

type helperRecord struct {
	Type     string  `json:"type"` // "info" or "segment"
	Duration float64 `json:"duration,omitempty"`
	Language string  `json:"language,omitempty"`
	Start    float64 `json:"start,omitempty"`
	End      float64 `json:"end,omitempty"`
	Text     string  `json:"text,omitempty"`
}

// Transcribe implements Engine.
func (f *FasterWhisper) Transcribe(ctx context.Context, audioPath string, fromSec float64, emit EmitFunc) error {
	scriptPath, cleanup, err := writeHelperScript()
	if err != nil {
		return err
	}
	defer cleanup()

	python := f.Python
	if python == "" {
		python = "python3"
	}
	args := []string{
		scriptPath,
		"--audio", audioPath,
		"--model", f.Model,
		"--device", f.Device,
		"--start", fmt.Sprintf("%.3f", fromSec),
	}

	cmd := exec.CommandContext(ctx, python, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start whisper helper: %w", err)
	}

	var totalSec float64
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var emitErr error
	for scanner.Scan() {
		var rec helperRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			if f.Logger != nil {
				f.Logger.Warn("skipping malformed helper output", "line", scanner.Text())
			}
			continue
		}

		switch rec.Type {
		case "info":
			totalSec = rec.Duration
			if f.Logger != nil {
				f.Logger.Info("transcription stream opened",
					"language", rec.Language, "duration_sec", rec.Duration, "from_sec", fromSec)
			}
		case "segment":
			seg := Segment{Start: rec.Start, End: rec.End, Text: strings.TrimSpace(rec.Text)}
			if emitErr = emit(seg, totalSec); emitErr != nil {
				break
			}
		}
		if emitErr != nil {
			break
		}
	}

	if emitErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return emitErr
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("read helper output: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("whisper helper failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// writeHelperScript materialises the embedded helper into the temp dir.
func writeHelperScript() (string, func(), error) {
	data, err := fs.ReadFile(helperFS, "assets/faster_whisper.py")
	if err != nil {
		return "", nil, fmt.Errorf("read embedded helper: %w", err)
	}
	path := filepath.Join(os.TempDir(), "scribe_faster_whisper.py")
	if err := os.WriteFile(path, data, 0o755); err != nil {
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}
