package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/scribe-go/internal/checkpoint"
	"github.com/raphaelgruber/scribe-go/internal/chunk"
	"github.com/raphaelgruber/scribe-go/internal/jobs"
	"github.com/raphaelgruber/scribe-go/internal/metrics"
	"github.com/raphaelgruber/scribe-go/internal/progress"
)

// stageSpec binds one LLM pass to its checkpoint tag, job status and
// progress wording.
type stageSpec struct {
	tag      checkpoint.Stage
	status   jobs.Status
	metricOp string
	verb     string
	call     func(g Generator, ctx context.Context, chunkText, previous string) (string, error)
}

var stageClean = stageSpec{
	tag:      checkpoint.StageClean,
	status:   jobs.StatusCleaning,
	metricOp: metrics.OpLLMClean,
	verb:     "cleaning text",
	call: func(g Generator, ctx context.Context, chunkText, previous string) (string, error) {
		return g.CleanChunk(ctx, chunkText, previous)
	},
}

var stageStructure = stageSpec{
	tag:      checkpoint.StageStructure,
	status:   jobs.StatusStructuring,
	metricOp: metrics.OpLLMStructure,
	verb:     "structuring document",
	call: func(g Generator, ctx context.Context, chunkText, previous string) (string, error) {
		return g.StructureChunk(ctx, chunkText, previous)
	},
}

// runChunkStage executes one LLM pass over the stage input. The input is
// re-chunked deterministically, so a resumed run derives the same indices
// as the interrupted one; committed chunks are loaded from the store and
// only the remainder goes to the model. Chunks may be processed
// concurrently; each one is committed before it counts as done.
func (p *Processor) runChunkStage(ctx context.Context, job jobs.Job, spec stageSpec, input string, emit jobs.EmitFunc, log *slog.Logger) (string, error) {
	stem := job.Stem
	pieces := chunk.Split(input, p.opts.ChunkSize)
	total := len(pieces)
	if total == 0 {
		return "", nil
	}

	completed, err := p.store.ListCompletedChunks(ctx, stem, spec.tag)
	if err != nil {
		return "", &storageError{err}
	}

	results := make([]string, total)
	for idx := range completed {
		if idx >= total {
			continue // stale artifact from a different chunking config
		}
		text, err := p.store.ReadChunk(ctx, stem, spec.tag, idx)
		if err != nil {
			return "", &storageError{err}
		}
		results[idx] = text
	}

	remaining := 0
	for i := range pieces {
		if !completed[i] {
			remaining++
		}
	}
	log.Info("chunk stage", "stage", spec.tag, "total", total, "cached", total-remaining)

	if remaining == 0 {
		emit(spec.status, fmt.Sprintf("reusing %d processed chunks", total), 100)
		return strings.Join(results, "\n\n"), nil
	}

	var mu sync.Mutex
	est := progress.NewChunks(total, total-remaining, time.Now())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.LLMConcurrency)

	for i := range pieces {
		if completed[i] {
			continue
		}
		g.Go(func() error {
			// The hint is the tail of the previous raw chunk, not its
			// transformed output, so chunks stay independent and parallel.
			previous := ""
			if i > 0 {
				previous = pieces[i-1]
			}

			callStart := time.Now()
			var out string
			err := p.opts.Retry.Execute(gctx, func(cctx context.Context) error {
				var callErr error
				out, callErr = spec.call(p.llm, cctx, pieces[i], previous)
				return callErr
			})
			if err != nil {
				p.opts.Metrics.RecordFailure(spec.metricOp)
				return fmt.Errorf("chunk %d/%d: %w", i+1, total, err)
			}
			p.opts.Metrics.RecordTiming(spec.metricOp, time.Since(callStart))

			ioStart := time.Now()
			if err := p.store.WriteChunk(gctx, stem, spec.tag, i, out); err != nil {
				return &storageError{err}
			}
			p.opts.Metrics.RecordTiming(metrics.OpCheckpointIO, time.Since(ioStart))

			mu.Lock()
			results[i] = out
			pct, eta := est.Complete(time.Now())
			doneCount := total - est.Remaining()
			mu.Unlock()

			msg := fmt.Sprintf("%s (%d/%d chunks)", spec.verb, doneCount, total)
			if s := progress.FormatETA(eta); s != "" {
				msg = fmt.Sprintf("%s (%d/%d chunks, %s)", spec.verb, doneCount, total, s)
			}
			emit(spec.status, msg, pct)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(results, "\n\n"), nil
}
