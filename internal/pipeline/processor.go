// Package pipeline executes the three-stage audio-to-document pipeline for
// one job: transcribe, clean, structure. Every unit of work is committed to
// the checkpoint store before the next one starts, so a re-run after a
// crash or shutdown skips everything already done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/scribe-go/internal/checkpoint"
	"github.com/raphaelgruber/scribe-go/internal/jobs"
	"github.com/raphaelgruber/scribe-go/internal/metrics"
	"github.com/raphaelgruber/scribe-go/internal/retry"
	"github.com/raphaelgruber/scribe-go/internal/stt"
)

// Generator is the narrow text-generation surface the chunk stages need.
// *llm.Client satisfies it; tests inject fakes.
type Generator interface {
	CleanChunk(ctx context.Context, chunkText, previous string) (string, error)
	StructureChunk(ctx context.Context, chunkText, previous string) (string, error)
}

// Options configures a Processor.
type Options struct {
	ChunkSize      int
	LLMConcurrency int
	OutputDir      string
	ProcessedDir   string
	FailedDir      string
	Retry          retry.Policy
	Metrics        *metrics.Collector
	Logger         *slog.Logger
}

// Processor orchestrates the stage runners for one job at a time per job
// id. It is safe for concurrent use across jobs; the speech-to-text engine
// is guarded by a single-slot semaphore because it is a memory-heavy,
// single-instance resource.
type Processor struct {
	store   checkpoint.Store
	engine  stt.Engine
	llm     Generator
	sttSlot *semaphore.Weighted
	opts    Options
}

// New creates a Processor.
func New(store checkpoint.Store, engine stt.Engine, gen Generator, opts Options) *Processor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 6000
	}
	if opts.LLMConcurrency <= 0 {
		opts.LLMConcurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	return &Processor{
		store:   store,
		engine:  engine,
		llm:     gen,
		sttSlot: semaphore.NewWeighted(1),
		opts:    opts,
	}
}

// Process implements jobs.Processor: it runs the three stages in sequence
// and returns the path of the final document. Any stage error aborts the
// remaining stages; the job manager records the failure.
func (p *Processor) Process(ctx context.Context, job jobs.Job, emit jobs.EmitFunc) (string, error) {
	log := p.opts.Logger.With("job_id", job.ID, "stem", job.Stem)
	log.Info("pipeline started", "file", job.Filename)

	outputPath, err := p.runStages(ctx, job, emit, log)
	if err != nil {
		p.moveSource(job.SourcePath, p.opts.FailedDir, log)
		return "", err
	}

	p.moveSource(job.SourcePath, p.opts.ProcessedDir, log)
	log.Info("pipeline finished", "output", outputPath)
	return outputPath, nil
}

func (p *Processor) runStages(ctx context.Context, job jobs.Job, emit jobs.EmitFunc, log *slog.Logger) (string, error) {
	transcript, err := p.runTranscribe(ctx, job, emit, log)
	if err != nil {
		return "", fmt.Errorf("transcribe stage: %w", err)
	}

	cleaned, err := p.runChunkStage(ctx, job, stageClean, transcript, emit, log)
	if err != nil {
		return "", fmt.Errorf("clean stage: %w", err)
	}

	structured, err := p.runChunkStage(ctx, job, stageStructure, cleaned, emit, log)
	if err != nil {
		return "", fmt.Errorf("structure stage: %w", err)
	}

	outputPath := filepath.Join(p.opts.OutputDir, job.Stem+".md")
	doc := fmt.Sprintf("# %s\n\n%s", documentTitle(job.Filename), structured)
	if err := checkpoint.WriteFileAtomic(outputPath, []byte(doc)); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return outputPath, nil
}

// moveSource relocates the input audio after a terminal outcome. Failure to
// move is logged, not fatal; the document (or the error) already stands.
func (p *Processor) moveSource(sourcePath, destDir string, log *slog.Logger) {
	if destDir == "" || sourcePath == "" {
		return
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return // already moved by a previous run
	}
	dest := filepath.Join(destDir, filepath.Base(sourcePath))
	if err := os.Rename(sourcePath, dest); err != nil {
		log.Warn("could not move source file", "dest", dest, "error", err)
		return
	}
	log.Info("source file moved", "dest", dest)
}

// documentTitle turns "data_structures-03.mp3" into "Data Structures 03".
func documentTitle(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	if len(words) == 0 {
		return stem
	}
	return strings.Join(words, " ")
}

// storageError marks checkpoint failures so the retry policy never retries
// them: silently proceeding past a failed write risks duplicating or losing
// work.
type storageError struct {
	err error
}

func (e *storageError) Error() string { return "checkpoint store: " + e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

func isStorageError(err error) bool {
	var se *storageError
	return errors.As(err, &se)
}
