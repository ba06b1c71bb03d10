// Package progress converts stage-internal counters into percent-complete
// and estimated-time-remaining values.
package progress

import (
	"fmt"
	"time"
)

// TranscribeEstimator derives progress from segment end timestamps against
// the total audio duration. Percent is clamped to [0,100) and never
// decreases, even if the engine re-emits an earlier segment.
type TranscribeEstimator struct {
	totalSec float64
	started  time.Time
	percent  int
}

// NewTranscribe creates an estimator for an audio file of totalSec seconds.
// started is the wall-clock start of the stage.
func NewTranscribe(totalSec float64, started time.Time) *TranscribeEstimator {
	return &TranscribeEstimator{totalSec: totalSec, started: started}
}

// Update records the latest emitted segment end timestamp and returns the
// current percent and ETA.
func (e *TranscribeEstimator) Update(endSec float64, now time.Time) (int, time.Duration) {
	if e.totalSec <= 0 {
		return e.percent, 0
	}

	frac := endSec / e.totalSec
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}

	pct := int(frac * 100)
	if pct > 99 {
		pct = 99 // 100 is reserved for stage completion
	}
	if pct > e.percent {
		e.percent = pct
	}

	var eta time.Duration
	if frac > 0 && frac < 1 {
		elapsed := now.Sub(e.started)
		eta = time.Duration(float64(elapsed) / frac * (1 - frac))
	}
	return e.percent, eta
}

// Percent returns the latest computed percent.
func (e *TranscribeEstimator) Percent() int { return e.percent }

// etaWindow bounds the moving average so early slow chunks stop skewing the
// estimate on long runs.
const etaWindow = 8

// ChunkEstimator derives progress from completed chunk counts. ETA comes
// from a moving average of recent per-chunk durations.
type ChunkEstimator struct {
	total     int
	completed int
	percent   int
	last      time.Time
	durations []time.Duration
}

// NewChunks creates an estimator for a stage with total chunks, completed of
// which are already checkpointed. started is the wall-clock start of the
// stage.
func NewChunks(total, completed int, started time.Time) *ChunkEstimator {
	e := &ChunkEstimator{total: total, completed: completed, last: started}
	e.percent = e.computePercent()
	return e
}

// Complete records one finished chunk and returns the current percent and
// ETA.
func (e *ChunkEstimator) Complete(now time.Time) (int, time.Duration) {
	if e.completed < e.total {
		e.completed++
	}

	e.durations = append(e.durations, now.Sub(e.last))
	if len(e.durations) > etaWindow {
		e.durations = e.durations[1:]
	}
	e.last = now

	if pct := e.computePercent(); pct > e.percent {
		e.percent = pct
	}
	return e.percent, e.eta()
}

// Percent returns the latest computed percent.
func (e *ChunkEstimator) Percent() int { return e.percent }

// Remaining returns the number of chunks not yet completed.
func (e *ChunkEstimator) Remaining() int { return e.total - e.completed }

func (e *ChunkEstimator) computePercent() int {
	if e.total <= 0 {
		return 0
	}
	return e.completed * 100 / e.total
}

func (e *ChunkEstimator) eta() time.Duration {
	remaining := e.total - e.completed
	if remaining <= 0 || len(e.durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range e.durations {
		sum += d
	}
	avg := sum / time.Duration(len(e.durations))
	return avg * time.Duration(remaining)
}

// FormatETA renders a duration the way the progress messages expect:
// "~3m left" / "~42s left", empty when unknown.
func FormatETA(eta time.Duration) string {
	if eta <= 0 {
		return ""
	}
	if eta >= time.Minute {
		return fmt.Sprintf("~%dm left", int(eta.Minutes()))
	}
	return fmt.Sprintf("~%ds left", int(eta.Seconds()))
}
