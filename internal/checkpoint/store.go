// Package checkpoint persists per-job intermediate artifacts so interrupted
// pipeline runs can resume without redoing completed work.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("checkpoint: artifact not found")

// Stage tags name the two chunk artifact sets.
type Stage string

const (
	StageClean     Stage = "clean"
	StageStructure Stage = "struct"
)

// Segment is one unit of transcribed audio. End is the segment's end
// timestamp in seconds, used to resume transcription mid-file.
type Segment struct {
	End  float64
	Text string
}

// Store answers "what is already done" for a job stem and durably records
// completed units of work. Implementations must guarantee that a successful
// write call returns only after the data is committed, and that chunk writes
// are all-or-nothing.
type Store interface {
	// HasTranscript reports whether a complete transcript exists for stem.
	HasTranscript(ctx context.Context, stem string) (bool, error)

	// ReadTranscript returns the full transcript text for stem.
	// Returns ErrNotFound if no transcript was ever started.
	ReadTranscript(ctx context.Context, stem string) (string, error)

	// TranscriptOffset returns the end timestamp of the last durably flushed
	// segment, or 0 if transcription has not started. A resumed run feeds
	// this to the speech-to-text engine as its start offset.
	TranscriptOffset(ctx context.Context, stem string) (float64, error)

	// AppendSegment durably appends one transcribed segment. A crash before
	// return means the segment was never committed; the torn tail is ignored
	// on the next read.
	AppendSegment(ctx context.Context, stem string, seg Segment) error

	// FinishTranscript marks the transcript for stem as complete.
	FinishTranscript(ctx context.Context, stem string) error

	// ListCompletedChunks returns the set of chunk indices already committed
	// for the given stage.
	ListCompletedChunks(ctx context.Context, stem string, stage Stage) (map[int]bool, error)

	// ReadChunk returns the committed text of one chunk.
	// Returns ErrNotFound if the chunk was never committed.
	ReadChunk(ctx context.Context, stem string, stage Stage, index int) (string, error)

	// WriteChunk atomically commits one chunk. Rewriting an already-complete
	// index is a no-op success, so re-executed units are safe.
	WriteChunk(ctx context.Context, stem string, stage Stage, index int, text string) error
}
