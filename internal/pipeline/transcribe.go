package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/scribe-go/internal/checkpoint"
	"github.com/raphaelgruber/scribe-go/internal/jobs"
	"github.com/raphaelgruber/scribe-go/internal/metrics"
	"github.com/raphaelgruber/scribe-go/internal/progress"
	"github.com/raphaelgruber/scribe-go/internal/stt"
)

// runTranscribe resumably transcribes the job's audio file. Each segment is
// durably appended to the transcript before the next one is decoded; a
// resumed run restarts the engine at the last committed offset, so the
// estimator never reports below where the interrupted run stopped.
func (p *Processor) runTranscribe(ctx context.Context, job jobs.Job, emit jobs.EmitFunc, log *slog.Logger) (string, error) {
	stem := job.Stem

	done, err := p.store.HasTranscript(ctx, stem)
	if err != nil {
		return "", &storageError{err}
	}
	if done {
		log.Info("transcript already complete, skipping speech-to-text")
		emit(jobs.StatusTranscribing, "reusing existing transcript", 100)
		text, err := p.store.ReadTranscript(ctx, stem)
		if err != nil {
			return "", &storageError{err}
		}
		return text, nil
	}

	// The speech-to-text engine is a single-instance resource; only one job
	// may transcribe at a time.
	emit(jobs.StatusTranscribing, "waiting for transcription slot", 0)
	if err := p.sttSlot.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sttSlot.Release(1)

	var est *progress.TranscribeEstimator
	started := time.Now()

	// The whole engine invocation is the retried operation: each attempt
	// re-reads the committed offset, so a mid-stream transient failure
	// resumes where the last durable segment ended.
	policy := p.opts.Retry
	policy.CallTimeout = 0 // transcription legitimately runs for hours
	policy.IsTransient = func(err error) bool {
		return !isStorageError(err) && sttTransient(err)
	}

	err = policy.Execute(ctx, func(ctx context.Context) error {
		offset, err := p.store.TranscriptOffset(ctx, stem)
		if err != nil {
			return &storageError{err}
		}
		if offset > 0 {
			log.Info("resuming transcription", "from_sec", offset)
		}

		lastSeg := time.Now()
		return p.engine.Transcribe(ctx, job.SourcePath, offset, func(seg stt.Segment, totalSec float64) error {
			// Decode time since the previous segment arrived.
			p.opts.Metrics.RecordTiming(metrics.OpSTTSegment, time.Since(lastSeg))

			ioStart := time.Now()
			if err := p.store.AppendSegment(ctx, stem, checkpoint.Segment{End: seg.End, Text: seg.Text}); err != nil {
				return &storageError{err}
			}
			p.opts.Metrics.RecordTiming(metrics.OpCheckpointIO, time.Since(ioStart))
			lastSeg = time.Now()

			if est == nil {
				est = progress.NewTranscribe(totalSec, started)
				if offset > 0 {
					// Seed the monotonic floor at the resume point without
					// emitting an event for already-done work.
					est.Update(offset, started)
				}
			}
			pct, eta := est.Update(seg.End, time.Now())
			emit(jobs.StatusTranscribing, transcribeMessage(seg.End, totalSec, eta), pct)
			return nil
		})
	})
	if err != nil {
		p.opts.Metrics.RecordFailure(metrics.OpSTTSegment)
		return "", err
	}

	if err := p.store.FinishTranscript(ctx, stem); err != nil {
		return "", &storageError{err}
	}

	text, err := p.store.ReadTranscript(ctx, stem)
	if err != nil {
		return "", &storageError{err}
	}
	log.Info("transcription complete", "chars", len(text))
	return text, nil
}

// sttTransient treats everything except cancellation as retryable: the
// engine is a subprocess or remote call, and its failure modes (OOM kill,
// network, server restart) are all worth another attempt.
func sttTransient(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func transcribeMessage(endSec, totalSec float64, eta time.Duration) string {
	if totalSec <= 0 {
		return fmt.Sprintf("transcribing %s", clock(endSec))
	}
	msg := fmt.Sprintf("transcribing %s / %s", clock(endSec), clock(totalSec))
	if s := progress.FormatETA(eta); s != "" {
		msg += " (" + s + ")"
	}
	return msg
}

func clock(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
